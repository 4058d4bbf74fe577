package types

// Session is the authenticated state for a single polling cycle. It is never
// persisted and never reused across cycles because the cloud token expires.
type Session struct {
	Token  string
	UserID int
}

// Station is a site under the account. Stations are rediscovered every cycle.
type Station struct {
	ID int `json:"stationID"`
}

// Device is an inverter or battery unit identified by its serial number.
type Device struct {
	Serial    string `json:"serial"`
	StationID int    `json:"stationID"`
}
