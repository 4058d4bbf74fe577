package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/storage"
	"github.com/raterudder/renacsync/pkg/types"
)

// Outcome is what happened to a single observation.
type Outcome string

const (
	// OutcomeWritten means the point exists and received the new value.
	OutcomeWritten Outcome = "written"
	// OutcomeExcluded means the key is excluded and no point existed.
	OutcomeExcluded Outcome = "excluded"
	// OutcomeDeleted means the key is excluded and its stale point was removed.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeBlacklisted means the key was added to the exclusion list during
	// this cycle because its point had disappeared.
	OutcomeBlacklisted Outcome = "blacklisted"
	// OutcomeFailed means a store operation failed.
	OutcomeFailed Outcome = "failed"
)

// PersistenceError is returned when a store operation for a single point
// fails. It never aborts a cycle.
type PersistenceError struct {
	PointID string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.PointID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Stats counts outcomes for one cycle.
type Stats struct {
	Written     int `json:"written"`
	Excluded    int `json:"excluded"`
	Deleted     int `json:"deleted"`
	Blacklisted int `json:"blacklisted"`
	Failed      int `json:"failed"`
}

func (s *Stats) add(o Outcome) {
	switch o {
	case OutcomeWritten:
		s.Written++
	case OutcomeExcluded:
		s.Excluded++
	case OutcomeDeleted:
		s.Deleted++
	case OutcomeBlacklisted:
		s.Blacklisted++
	case OutcomeFailed:
		s.Failed++
	}
}

// Reconciler applies the observations of one cycle to the state store.
type Reconciler struct {
	store storage.StateStore
	list  *ExclusionList
	first bool
	now   time.Time

	// channels already ensured during this cycle
	channels map[string]struct{}
	stats    Stats
}

// New starts reconciling a cycle. first must be true only until a cycle has
// completed since process start; keys without a point are not blacklisted then.
func New(store storage.StateStore, list *ExclusionList, first bool, now time.Time) *Reconciler {
	return &Reconciler{
		store:    store,
		list:     list,
		first:    first,
		now:      now,
		channels: make(map[string]struct{}),
	}
}

// Stats returns the outcome counters so far.
func (r *Reconciler) Stats() Stats {
	return r.stats
}

// Apply reconciles a single observation. A returned error is always a
// *PersistenceError and only concerns this observation.
func (r *Reconciler) Apply(ctx context.Context, obs types.Observation) (Outcome, error) {
	o, err := r.apply(ctx, obs)
	r.stats.add(o)
	return o, err
}

func (r *Reconciler) apply(ctx context.Context, obs types.Observation) (Outcome, error) {
	id := obs.PointID()
	ctx = log.WithAttrs(ctx, slog.String("point", id))

	if r.list.Contains(obs.Key) {
		return r.remove(ctx, id)
	}

	exists, err := r.store.ObjectExists(ctx, id)
	if err != nil {
		return OutcomeFailed, &PersistenceError{PointID: id, Op: "exists", Err: err}
	}

	if !exists && !r.first {
		r.list.Add(obs.Key)
		log.Ctx(ctx).InfoContext(ctx, "point missing, adding key to exclusion list", slog.String("key", obs.Key))
		return OutcomeBlacklisted, nil
	}

	if err := r.ensureChannels(ctx, obs); err != nil {
		return OutcomeFailed, err
	}
	if !exists {
		if err := r.store.CreateObjectIfAbsent(ctx, id, obs.PointMeta()); err != nil {
			return OutcomeFailed, &PersistenceError{PointID: id, Op: "create", Err: err}
		}
		log.Ctx(ctx).DebugContext(ctx, "created point", slog.String("unit", obs.Unit), slog.String("role", string(obs.Role)))
	}

	state := types.PointState{Value: obs.Value, Ack: true, Timestamp: r.now}
	if err := r.store.WriteState(ctx, id, state); err != nil {
		return OutcomeFailed, &PersistenceError{PointID: id, Op: "write", Err: err}
	}
	return OutcomeWritten, nil
}

func (r *Reconciler) remove(ctx context.Context, id string) (Outcome, error) {
	exists, err := r.store.ObjectExists(ctx, id)
	if err != nil {
		return OutcomeFailed, &PersistenceError{PointID: id, Op: "exists", Err: err}
	}
	if !exists {
		return OutcomeExcluded, nil
	}
	if err := r.store.DeleteObject(ctx, id); err != nil {
		return OutcomeFailed, &PersistenceError{PointID: id, Op: "delete", Err: err}
	}
	log.Ctx(ctx).InfoContext(ctx, "deleted excluded point")
	return OutcomeDeleted, nil
}

func (r *Reconciler) ensureChannels(ctx context.Context, obs types.Observation) error {
	ids := []string{obs.StationScope()}
	if obs.Device != "" {
		ids = append(ids, obs.ChannelID())
	}
	for _, id := range ids {
		if _, ok := r.channels[id]; ok {
			continue
		}
		if err := r.store.CreateObjectIfAbsent(ctx, id, types.ChannelMeta(id)); err != nil {
			return &PersistenceError{PointID: id, Op: "create channel", Err: err}
		}
		r.channels[id] = struct{}{}
	}
	return nil
}
