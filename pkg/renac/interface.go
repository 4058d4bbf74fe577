package renac

import (
	"context"
	"encoding/json"
	"time"

	"github.com/raterudder/renacsync/pkg/types"
)

// Cloud defines the interface for talking to the Renac monitoring cloud.
type Cloud interface {
	// Login authenticates and returns a session valid for one polling cycle.
	Login(ctx context.Context, username, password string) (types.Session, error)

	// ListStations returns the stations of the session's user. Only the first
	// page is requested.
	ListStations(ctx context.Context, sess types.Session) ([]types.Station, error)
	// ListDevices returns the inverters of a station. Only the first page is
	// requested.
	ListDevices(ctx context.Context, sess types.Session, stationID int) ([]types.Device, error)

	// PowerFlow returns the live power-flow snapshot of a station.
	PowerFlow(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error)
	// Overview returns the grouped storage overview of a station.
	Overview(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error)
	// Savings returns the accumulated savings of a station.
	Savings(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error)
	// DeviceDetail returns the detail of a single inverter for the given day.
	DeviceDetail(ctx context.Context, sess types.Session, serial string, day time.Time) (json.RawMessage, error)

	// Location is the time zone the stations report in.
	Location() *time.Location
}
