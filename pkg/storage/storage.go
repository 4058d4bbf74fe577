package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/types"
)

// ConfigStore exposes the exclusion list held in the database settings. Until
// settings have been saved once the defaults are returned.
type ConfigStore struct {
	db       Database
	defaults []string
}

// NewConfigStore returns a ConfigStore backed by db. defaults is used until an
// exclusion list has been persisted.
func NewConfigStore(db Database, defaults []string) *ConfigStore {
	return &ConfigStore{db: db, defaults: defaults}
}

// ExclusionList returns the current exclusion list.
func (c *ConfigStore) ExclusionList(ctx context.Context) ([]string, error) {
	settings, version, err := c.db.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if version == 0 {
		log.Ctx(ctx).DebugContext(ctx, "no stored settings, using configured exclusion list", slog.Int("keys", len(c.defaults)))
		return append([]string(nil), c.defaults...), nil
	}
	return settings.ExclusionList, nil
}

// PersistExclusionList replaces the stored exclusion list with keys.
func (c *ConfigStore) PersistExclusionList(ctx context.Context, keys []string) error {
	settings, _, err := c.db.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	settings.ExclusionList = append([]string(nil), keys...)
	if err := c.db.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
		return fmt.Errorf("failed to save exclusion list: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "persisted exclusion list", slog.Int("keys", len(keys)))
	return nil
}

func encodeMeta(meta types.PointMeta) (string, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta: %w", err)
	}
	return string(b), nil
}

func encodeState(state types.PointState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(b), nil
}

// decodePoint builds a Point from its stored JSON columns. An empty state
// string means no state was written yet.
func decodePoint(id, meta, state string) (types.Point, error) {
	p := types.Point{ID: id}
	if err := json.Unmarshal([]byte(meta), &p.Meta); err != nil {
		return types.Point{}, fmt.Errorf("failed to unmarshal meta (id=%s): %w", id, err)
	}
	s, err := decodeState(id, state)
	if err != nil {
		return types.Point{}, err
	}
	p.State = s
	return p, nil
}

func decodeState(id, state string) (*types.PointState, error) {
	if state == "" {
		return nil, nil
	}
	var s types.PointState
	if err := json.Unmarshal([]byte(state), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state (id=%s): %w", id, err)
	}
	return &s, nil
}

// prefixEnd returns the smallest string greater than every string starting
// with prefix, or "" when there is none.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("object id cannot be empty")
	}
	if strings.ContainsAny(id, "/*?[]") {
		return fmt.Errorf("invalid object id %q", id)
	}
	return nil
}
