package renac

import (
	"fmt"
	"strconv"
)

// TelemetryKind names the telemetry endpoint that produced a payload.
type TelemetryKind string

const (
	KindPowerFlow    TelemetryKind = "powerFlow"
	KindOverview     TelemetryKind = "overview"
	KindSavings      TelemetryKind = "savings"
	KindDeviceDetail TelemetryKind = "deviceDetail"
)

// CodeError is returned when the cloud answers with a code other than 1.
type CodeError struct {
	Code    int
	Message string
}

func (e *CodeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("renac api error: code %d", e.Code)
	}
	return fmt.Sprintf("renac api error: code %d: %s", e.Code, e.Message)
}

// AuthError is returned when logging in fails for any reason.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DiscoveryError is returned when listing stations or devices fails.
type DiscoveryError struct {
	Op string
	// StationID is set when listing devices.
	StationID int
	Err       error
}

func (e *DiscoveryError) Error() string {
	if e.StationID != 0 {
		return fmt.Sprintf("%s (station %d) failed: %v", e.Op, e.StationID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// TelemetryError is returned when fetching a telemetry payload fails.
type TelemetryError struct {
	Kind TelemetryKind
	// ScopeID is the station ID or the device serial.
	ScopeID string
	Err     error
}

func (e *TelemetryError) Error() string {
	return fmt.Sprintf("%s for %s failed: %v", e.Kind, e.ScopeID, e.Err)
}

func (e *TelemetryError) Unwrap() error {
	return e.Err
}

func stationScope(stationID int) string {
	return strconv.Itoa(stationID)
}
