package renac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/raterudder/renacsync/pkg/types"
)

// Mock is an in-process stand-in for the Renac cloud. It reports two stations
// with one inverter each and derives plausible values from the time of day.
type Mock struct {
	mu       sync.Mutex
	location *time.Location
	now      func() time.Time
	logins   int
}

var _ Cloud = (*Mock)(nil)

// NewMock returns a mock cloud reporting in loc.
func NewMock(loc *time.Location) *Mock {
	if loc == nil {
		loc = time.Local
	}
	return &Mock{
		location: loc,
		now:      time.Now,
	}
}

func (m *Mock) Location() *time.Location {
	return m.location
}

func (m *Mock) Login(ctx context.Context, username, password string) (types.Session, error) {
	if username == "" || password == "" {
		return types.Session{}, &AuthError{Err: errors.New("missing credentials")}
	}
	m.mu.Lock()
	m.logins++
	n := m.logins
	m.mu.Unlock()
	return types.Session{Token: fmt.Sprintf("mock-token-%d", n), UserID: 1}, nil
}

func (m *Mock) ListStations(ctx context.Context, sess types.Session) ([]types.Station, error) {
	return []types.Station{{ID: 101}, {ID: 102}}, nil
}

func (m *Mock) ListDevices(ctx context.Context, sess types.Session, stationID int) ([]types.Device, error) {
	return []types.Device{{Serial: fmt.Sprintf("MOCK%d01", stationID), StationID: stationID}}, nil
}

// solarFactor is a bell curve peaking at solar noon.
func (m *Mock) solarFactor() float64 {
	t := m.now().In(m.location)
	hour := float64(t.Hour()) + float64(t.Minute())/60
	if hour < 6 || hour > 20 {
		return 0
	}
	return math.Sin((hour - 6) / 14 * math.Pi)
}

func (m *Mock) PowerFlow(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	pv := math.Round(5000 * m.solarFactor())
	load := 800.0
	return json.Marshal(map[string]interface{}{
		"pv_power":   pv,
		"load_power": load,
		"grid_power": load - pv,
		"soc":        "76",
	})
}

func (m *Mock) Overview(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{
		"battery": []map[string]interface{}{{
			"bat_soc":     "76",
			"bat_voltage": "52.4",
			"bat_current": "-3.1",
			"bat_temp":    "24",
		}},
		"grid": []map[string]interface{}{{
			"grid_frequency": "50.01",
			"meter_total":    "1834.2",
		}},
	})
}

func (m *Mock) Savings(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{
		"co2_reduced":  "12.5",
		"so2_reduced":  "0.4",
		"total_profit": "311.08",
	})
}

func (m *Mock) DeviceDetail(ctx context.Context, sess types.Session, serial string, day time.Time) (json.RawMessage, error) {
	f := m.solarFactor()
	return json.Marshal(map[string]interface{}{
		"pv1_voltage":  math.Round(320*f*10) / 10,
		"pv1_current":  math.Round(8*f*10) / 10,
		"inner_temp":   31,
		"today_energy": math.Round(18*f*10) / 10,
		"work_mode":    "normal",
		"date":         day.In(m.location).Format(time.DateOnly),
	})
}
