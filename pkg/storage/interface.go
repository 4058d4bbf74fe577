package storage

import (
	"context"

	"github.com/raterudder/renacsync/pkg/types"
)

// StateStore persists channel and state objects keyed by their dotted ID.
type StateStore interface {
	// ObjectExists reports whether an object with the given ID exists.
	ObjectExists(ctx context.Context, id string) (bool, error)
	// CreateObjectIfAbsent creates the object with meta unless it already
	// exists. Existing objects are left untouched.
	CreateObjectIfAbsent(ctx context.Context, id string, meta types.PointMeta) error
	// ReadState returns the latest state of the object, or nil if it has none.
	ReadState(ctx context.Context, id string) (*types.PointState, error)
	// WriteState replaces the latest state of the object.
	WriteState(ctx context.Context, id string, state types.PointState) error
	// DeleteObject removes the object. Deleting a missing object is not an
	// error.
	DeleteObject(ctx context.Context, id string) error
	// ListPoints returns every object whose ID starts with prefix, ordered by
	// ID.
	ListPoints(ctx context.Context, prefix string) ([]types.Point, error)
}

// Database is a StateStore that also holds the mutable settings.
type Database interface {
	StateStore

	// Settings
	GetSettings(ctx context.Context) (types.Settings, int, error)
	SetSettings(ctx context.Context, settings types.Settings, version int) error

	// Lifecycle
	Close() error
}
