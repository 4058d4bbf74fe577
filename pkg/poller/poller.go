package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/reconcile"
	"github.com/raterudder/renacsync/pkg/renac"
	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/telemetry"
	"github.com/raterudder/renacsync/pkg/types"
)

const (
	// DefaultInterval is used when the configured interval is too short.
	DefaultInterval = 60 * time.Second
	// MinInterval is the shortest accepted poll interval.
	MinInterval = 10 * time.Second

	flushTimeout = 10 * time.Second
)

// ConfigStore holds the persisted exclusion list.
type ConfigStore interface {
	ExclusionList(ctx context.Context) ([]string, error)
	PersistExclusionList(ctx context.Context, keys []string) error
}

// Options are the static settings of a Poller.
type Options struct {
	Username string
	Password string
	Interval time.Duration
}

// Status is a snapshot of the poller for the status API.
type Status struct {
	// Connected is true when the last cycle completed without an aborting
	// error.
	Connected     bool            `json:"connected"`
	Running       bool            `json:"running"`
	Cycles        int             `json:"cycles"`
	FailedCycles  int             `json:"failedCycles"`
	LastStart     time.Time       `json:"lastStart"`
	LastEnd       time.Time       `json:"lastEnd"`
	LastError     string          `json:"lastError,omitempty"`
	LastStats     reconcile.Stats `json:"lastStats"`
	Stations      []int           `json:"stations"`
	ExclusionList []string        `json:"exclusionList"`
	Interval      string          `json:"interval"`
}

// Poller runs polling cycles against the cloud and reconciles the results
// into the state store. Cycles never run concurrently.
type Poller struct {
	cloud    renac.Cloud
	store    storage.StateStore
	config   ConfigStore
	username string
	password string
	interval time.Duration
	now      func() time.Time

	// owned by the cycle goroutine
	list   *reconcile.ExclusionList
	first  bool
	cycles int

	mu     sync.Mutex
	status Status
}

// New validates opts and returns a Poller.
func New(cloud renac.Cloud, store storage.StateStore, config ConfigStore, opts Options) (*Poller, error) {
	p := &Poller{
		cloud:  cloud,
		store:  store,
		config: config,
		now:    time.Now,
		first:  true,
	}
	if err := p.configure(opts); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Poller) configure(opts Options) error {
	if opts.Username == "" {
		return errors.New("renac username is required")
	}
	if opts.Password == "" {
		return errors.New("renac password is required")
	}
	p.username = opts.Username
	p.password = opts.Password
	p.interval = opts.Interval
	if p.interval < MinInterval {
		log.Ctx(context.Background()).Warn(
			"poll interval too short, using default",
			slog.Duration("configured", opts.Interval),
			slog.Duration("interval", DefaultInterval),
		)
		p.interval = DefaultInterval
	}
	p.status.Interval = p.interval.String()
	return nil
}

// Interval returns the effective poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Status returns a copy of the current status.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Stations = append([]int(nil), s.Stations...)
	s.ExclusionList = append([]string(nil), s.ExclusionList...)
	return s
}

// Run runs a cycle immediately and then on every tick until ctx is done. The
// interval is measured from the start of a cycle; ticks that arrive while a
// cycle is still running are dropped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Ctx(ctx).InfoContext(ctx, "starting poller", slog.Duration("interval", p.interval))
	for {
		if err := p.RunCycle(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "stopping poller")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle performs one complete cycle. An error means the cycle was aborted;
// errors for single points are logged and counted instead.
func (p *Poller) RunCycle(ctx context.Context) error {
	p.cycles++
	ctx = log.WithAttrs(ctx, slog.Int("cycle", p.cycles))
	start := p.now()
	p.markStart(start)

	log.Ctx(ctx).InfoContext(ctx, "cycle started", slog.Bool("first", p.first))

	if p.list == nil {
		keys, err := p.config.ExclusionList(ctx)
		if err != nil {
			err = fmt.Errorf("failed to load exclusion list: %w", err)
			p.markEnd(ctx, start, nil, reconcile.Stats{}, err)
			return err
		}
		p.list = reconcile.NewExclusionList(keys)
		log.Ctx(ctx).DebugContext(ctx, "loaded exclusion list", slog.Int("keys", p.list.Len()))
	}

	r := reconcile.New(p.store, p.list, p.first, start)
	stations, err := p.poll(ctx, r, start)
	p.flushExclusionList(ctx)
	if err == nil {
		p.first = false
	}
	p.markEnd(ctx, start, stations, r.Stats(), err)
	return err
}

func (p *Poller) poll(ctx context.Context, r *reconcile.Reconciler, now time.Time) ([]int, error) {
	sess, err := p.cloud.Login(ctx, p.username, p.password)
	if err != nil {
		return nil, err
	}

	stations, err := p.cloud.ListStations(ctx, sess)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).DebugContext(ctx, "discovered stations", slog.Int("count", len(stations)))

	var done []int
	for _, station := range stations {
		sctx := log.WithAttrs(ctx, slog.Int("stationID", station.ID))
		observations, err := p.fetchStation(sctx, sess, station, now)
		if err != nil {
			return done, err
		}
		p.apply(sctx, r, observations)
		done = append(done, station.ID)
	}
	return done, nil
}

// fetchStation gathers every observation of a station before anything is
// written, so a failing fetch leaves the station untouched.
func (p *Poller) fetchStation(ctx context.Context, sess types.Session, station types.Station, now time.Time) ([]types.Observation, error) {
	scope := strconv.Itoa(station.ID)
	var observations []types.Observation

	collect := func(kind renac.TelemetryKind, scopeID string, payload telemetry.Payload, device string) error {
		obs, err := telemetry.Observations(payload, station.ID, device)
		if err != nil {
			return &renac.TelemetryError{Kind: kind, ScopeID: scopeID, Err: err}
		}
		observations = append(observations, obs...)
		return nil
	}

	data, err := p.cloud.PowerFlow(ctx, sess, station.ID)
	if err != nil {
		return nil, err
	}
	if err := collect(renac.KindPowerFlow, scope, telemetry.Flat{Data: data}, ""); err != nil {
		return nil, err
	}

	data, err = p.cloud.Overview(ctx, sess, station.ID)
	if err != nil {
		return nil, err
	}
	if err := collect(renac.KindOverview, scope, telemetry.Grouped{Data: data}, ""); err != nil {
		return nil, err
	}

	data, err = p.cloud.Savings(ctx, sess, station.ID)
	if err != nil {
		return nil, err
	}
	if err := collect(renac.KindSavings, scope, telemetry.Flat{Data: data, Prefix: "saving"}, ""); err != nil {
		return nil, err
	}

	devices, err := p.cloud.ListDevices(ctx, sess, station.ID)
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		data, err := p.cloud.DeviceDetail(ctx, sess, device.Serial, now)
		if err != nil {
			return nil, err
		}
		payload := telemetry.Flat{Data: data, Prefix: "inverter"}
		if err := collect(renac.KindDeviceDetail, device.Serial, payload, telemetry.SanitizeKey(device.Serial)); err != nil {
			return nil, err
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "fetched station telemetry", slog.Int("devices", len(devices)), slog.Int("observations", len(observations)))
	return observations, nil
}

func (p *Poller) apply(ctx context.Context, r *reconcile.Reconciler, observations []types.Observation) {
	for _, obs := range observations {
		if _, err := r.Apply(ctx, obs); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to persist point", slog.Any("error", err))
		}
	}
}

// flushExclusionList writes a grown list back once. It still runs when ctx was
// canceled so keys learned before an abort are kept. On failure the list stays
// changed and the next cycle retries.
func (p *Poller) flushExclusionList(ctx context.Context) {
	if !p.list.Changed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	added := p.list.Added()
	if err := p.config.PersistExclusionList(ctx, p.list.Keys()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist exclusion list", slog.Any("error", err), slog.Any("added", added))
		return
	}
	p.list.Commit()
	log.Ctx(ctx).InfoContext(ctx, "exclusion list updated", slog.Any("added", added), slog.String("list", types.FormatExclusionList(p.list.Keys())))
}

func (p *Poller) markStart(start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Running = true
	p.status.LastStart = start
}

func (p *Poller) markEnd(ctx context.Context, start time.Time, stations []int, stats reconcile.Stats, err error) {
	end := p.now()

	p.mu.Lock()
	p.status.Running = false
	p.status.Cycles++
	p.status.LastEnd = end
	p.status.LastStats = stats
	p.status.Stations = stations
	p.status.Connected = err == nil
	p.status.LastError = ""
	if err != nil {
		p.status.FailedCycles++
		p.status.LastError = err.Error()
	}
	if p.list != nil {
		p.status.ExclusionList = p.list.Keys()
	}
	p.mu.Unlock()

	log.Ctx(ctx).InfoContext(
		ctx,
		"cycle finished",
		slog.Bool("connected", err == nil),
		slog.Duration("took", end.Sub(start)),
		slog.Int("stations", len(stations)),
		slog.Int("written", stats.Written),
		slog.Int("deleted", stats.Deleted),
		slog.Int("blacklisted", stats.Blacklisted),
		slog.Int("failed", stats.Failed),
	)
}
