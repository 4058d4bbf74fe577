package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/renac"
	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// fakeCloud serves fixed payloads. fail maps "<kind>:<scope>" (or "login",
// "stations") to an error.
type fakeCloud struct {
	stations []int
	devices  map[int][]string
	fail     map[string]error
	calls    []string
}

var _ renac.Cloud = (*fakeCloud)(nil)

func (f *fakeCloud) check(name string) error {
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeCloud) Login(ctx context.Context, username, password string) (types.Session, error) {
	if err := f.check("login"); err != nil {
		return types.Session{}, &renac.AuthError{Err: err}
	}
	return types.Session{Token: "t", UserID: 1}, nil
}

func (f *fakeCloud) ListStations(ctx context.Context, sess types.Session) ([]types.Station, error) {
	if err := f.check("stations"); err != nil {
		return nil, &renac.DiscoveryError{Op: "station list", Err: err}
	}
	var stations []types.Station
	for _, id := range f.stations {
		stations = append(stations, types.Station{ID: id})
	}
	return stations, nil
}

func (f *fakeCloud) ListDevices(ctx context.Context, sess types.Session, stationID int) ([]types.Device, error) {
	if err := f.check(fmt.Sprintf("devices:%d", stationID)); err != nil {
		return nil, &renac.DiscoveryError{Op: "device list", StationID: stationID, Err: err}
	}
	var devices []types.Device
	for _, sn := range f.devices[stationID] {
		devices = append(devices, types.Device{Serial: sn, StationID: stationID})
	}
	return devices, nil
}

func (f *fakeCloud) telemetry(kind renac.TelemetryKind, scope, body string) (json.RawMessage, error) {
	if err := f.check(fmt.Sprintf("%s:%s", kind, scope)); err != nil {
		return nil, &renac.TelemetryError{Kind: kind, ScopeID: scope, Err: err}
	}
	return json.RawMessage(body), nil
}

func (f *fakeCloud) PowerFlow(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	return f.telemetry(renac.KindPowerFlow, fmt.Sprint(stationID), `{"pv_power":1200,"none":"x"}`)
}

func (f *fakeCloud) Overview(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	return f.telemetry(renac.KindOverview, fmt.Sprint(stationID), `{"battery":[{"soc":"80"}]}`)
}

func (f *fakeCloud) Savings(ctx context.Context, sess types.Session, stationID int) (json.RawMessage, error) {
	return f.telemetry(renac.KindSavings, fmt.Sprint(stationID), `{"co2_reduced":"12.5"}`)
}

func (f *fakeCloud) DeviceDetail(ctx context.Context, sess types.Session, serial string, day time.Time) (json.RawMessage, error) {
	return f.telemetry(renac.KindDeviceDetail, serial, `{"pv1_voltage":"320.5"}`)
}

func (f *fakeCloud) Location() *time.Location {
	return time.UTC
}

// memConfig is a ConfigStore that records write-backs.
type memConfig struct {
	keys    []string
	writes  [][]string
	failErr error
}

func (m *memConfig) ExclusionList(ctx context.Context) ([]string, error) {
	return append([]string(nil), m.keys...), nil
}

func (m *memConfig) PersistExclusionList(ctx context.Context, keys []string) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.keys = append([]string(nil), keys...)
	m.writes = append(m.writes, m.keys)
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestPoller(t *testing.T, cloud *fakeCloud, config ConfigStore) (*Poller, *storage.SQLiteProvider) {
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	p, err := New(cloud, db, config, Options{Username: "u", Password: "p", Interval: time.Minute})
	require.NoError(t, err)
	p.now = func() time.Time { return testNow }
	return p, db
}

func pointIDs(t *testing.T, db storage.StateStore, prefix string) []string {
	points, err := db.ListPoints(context.Background(), prefix)
	require.NoError(t, err)
	var ids []string
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestNew(t *testing.T) {
	_, err := New(&fakeCloud{}, nil, &memConfig{}, Options{Password: "p"})
	assert.ErrorContains(t, err, "username")

	_, err = New(&fakeCloud{}, nil, &memConfig{}, Options{Username: "u"})
	assert.ErrorContains(t, err, "password")

	p, err := New(&fakeCloud{}, nil, &memConfig{}, Options{Username: "u", Password: "p", Interval: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, p.Interval())

	p, err = New(&fakeCloud{}, nil, &memConfig{}, Options{Username: "u", Password: "p", Interval: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.Interval())
}

func TestRunCycle(t *testing.T) {
	cloud := &fakeCloud{
		stations: []int{101},
		devices:  map[int][]string{101: {"SN-A"}},
	}
	config := &memConfig{}
	p, db := newTestPoller(t, cloud, config)
	ctx := context.Background()

	require.NoError(t, p.RunCycle(ctx))

	assert.Equal(t, []string{
		"101",
		"101.SN_A",
		"101.SN_A.inverter.pv1_voltage",
		"101.battery.soc",
		"101.pv_power",
		"101.saving.co2_reduced",
	}, pointIDs(t, db, ""))

	points, err := db.ListPoints(ctx, "101.saving.co2_reduced")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "kg", points[0].Meta.Unit)
	assert.Equal(t, types.RoleFillPercentage, points[0].Meta.Role)
	require.NotNil(t, points[0].State)
	assert.Equal(t, 12.5, points[0].State.Value)
	assert.True(t, points[0].State.Ack)

	status := p.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, []int{101}, status.Stations)
	assert.Equal(t, 4, status.LastStats.Written)
	assert.Empty(t, config.writes, "nothing to write back")

	assert.Equal(t, []string{
		"login", "stations",
		"powerFlow:101", "overview:101", "savings:101", "devices:101", "deviceDetail:SN-A",
	}, cloud.calls)
}

func TestTelemetryFailureAbortsCycle(t *testing.T) {
	cloud := &fakeCloud{
		stations: []int{101, 102, 103},
		fail:     map[string]error{"overview:102": errors.New("timeout")},
	}
	p, db := newTestPoller(t, cloud, &memConfig{})

	err := p.RunCycle(context.Background())
	var telErr *renac.TelemetryError
	require.ErrorAs(t, err, &telErr)
	assert.Equal(t, renac.KindOverview, telErr.Kind)
	assert.Equal(t, "102", telErr.ScopeID)

	assert.NotEmpty(t, pointIDs(t, db, "101."))
	assert.Empty(t, pointIDs(t, db, "102"), "station 102 is skipped")
	assert.Empty(t, pointIDs(t, db, "103"))
	assert.NotContains(t, cloud.calls, "powerFlow:103")

	status := p.Status()
	assert.False(t, status.Connected)
	assert.Equal(t, []int{101}, status.Stations)
	assert.Equal(t, 1, status.FailedCycles)
	assert.Contains(t, status.LastError, "overview for 102")
}

func TestAutoBlacklist(t *testing.T) {
	cloud := &fakeCloud{stations: []int{101}}
	config := &memConfig{keys: []string{"battery.soc"}}
	p, db := newTestPoller(t, cloud, config)
	ctx := context.Background()

	// cold start persists everything not excluded
	require.NoError(t, p.RunCycle(ctx))
	assert.Equal(t, []string{"101", "101.pv_power", "101.saving.co2_reduced"}, pointIDs(t, db, ""))
	assert.Empty(t, config.writes)

	// the point is removed externally
	require.NoError(t, db.DeleteObject(ctx, "101.pv_power"))

	require.NoError(t, p.RunCycle(ctx))
	assert.Equal(t, []string{"101", "101.saving.co2_reduced"}, pointIDs(t, db, ""), "not recreated")
	require.Len(t, config.writes, 1)
	assert.Equal(t, []string{"battery.soc", "pv_power"}, config.writes[0])
	assert.Equal(t, []string{"battery.soc", "pv_power"}, p.Status().ExclusionList)

	// steady state: no further write-backs
	require.NoError(t, p.RunCycle(ctx))
	assert.Len(t, config.writes, 1)
	assert.Equal(t, []string{"101", "101.saving.co2_reduced"}, pointIDs(t, db, ""))
}

func TestWriteBackRetried(t *testing.T) {
	cloud := &fakeCloud{stations: []int{101}}
	config := &memConfig{}
	p, db := newTestPoller(t, cloud, config)
	ctx := context.Background()

	require.NoError(t, p.RunCycle(ctx))
	require.NoError(t, db.DeleteObject(ctx, "101.battery.soc"))

	config.failErr = errors.New("unavailable")
	require.NoError(t, p.RunCycle(ctx), "write-back failure does not abort the cycle")
	assert.Empty(t, config.writes)

	config.failErr = nil
	require.NoError(t, p.RunCycle(ctx))
	require.Len(t, config.writes, 1)
	assert.Equal(t, []string{"battery.soc"}, config.writes[0])
}

func TestWriteBackOnAbortedCycle(t *testing.T) {
	cloud := &fakeCloud{stations: []int{101, 102}}
	config := &memConfig{}
	p, db := newTestPoller(t, cloud, config)
	ctx := context.Background()

	require.NoError(t, p.RunCycle(ctx))
	require.NoError(t, db.DeleteObject(ctx, "101.pv_power"))

	cloud.fail = map[string]error{"savings:102": errors.New("boom")}
	require.Error(t, p.RunCycle(ctx))
	require.Len(t, config.writes, 1)
	assert.Equal(t, []string{"pv_power"}, config.writes[0])
}

func TestFirstCycleLastsUntilSuccess(t *testing.T) {
	cloud := &fakeCloud{
		stations: []int{101},
		fail:     map[string]error{"login": errors.New("bad gateway")},
	}
	config := &memConfig{}
	p, db := newTestPoller(t, cloud, config)
	ctx := context.Background()

	err := p.RunCycle(ctx)
	var authErr *renac.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, p.Status().Connected)

	cloud.fail = nil
	require.NoError(t, p.RunCycle(ctx))
	assert.Empty(t, config.writes, "nothing is blacklisted while still in the first cycle")
	assert.Contains(t, pointIDs(t, db, ""), "101.pv_power")
	assert.True(t, p.Status().Connected)
}

func TestDiscoveryFailure(t *testing.T) {
	cloud := &fakeCloud{
		stations: []int{101},
		fail:     map[string]error{"devices:101": errors.New("boom")},
	}
	p, db := newTestPoller(t, cloud, &memConfig{})

	err := p.RunCycle(context.Background())
	var discErr *renac.DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, 101, discErr.StationID)
	assert.Empty(t, pointIDs(t, db, ""))
}

func TestRunStopsOnCancel(t *testing.T) {
	cloud := &fakeCloud{stations: []int{101}}
	p, _ := newTestPoller(t, cloud, &memConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, p.Status().Cycles, "one cycle runs immediately")
	assert.False(t, p.Status().Running)
}
