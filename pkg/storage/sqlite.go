package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/renacsync/pkg/log"
	"github.com/raterudder/renacsync/pkg/types"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaPoints = `
CREATE TABLE IF NOT EXISTS points (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    meta TEXT NOT NULL,
    state TEXT,
    updated_at TIMESTAMP
);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    json TEXT NOT NULL,
    version INTEGER NOT NULL
);
`

// SQLiteProvider implements the Database interface on an embedded SQLite file.
type SQLiteProvider struct {
	db   *sql.DB
	path string
}

func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "renacsync.db", "Path of the SQLite database file")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// OpenSQLite opens the database file at path, creating it if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteProvider, error) {
	s := &SQLiteProvider{path: path}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteProvider wraps an already opened database. Init is not needed.
func NewSQLiteProvider(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path cannot be empty")
	}
	return nil
}

// Init opens or creates the database file and ensures the tables exist.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open(sqliteDriverName, s.path)
	if err != nil {
		return fmt.Errorf("open sqlite at %q: %w", s.path, err)
	}

	// a single connection avoids SQLITE_BUSY between writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	s.db = db
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaPoints,
		schemaSettings,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetSettings reads the single settings row.
func (s *SQLiteProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	var (
		jsonStr string
		version int
	)
	err := s.db.QueryRowContext(ctx, `SELECT json, version FROM settings WHERE id = 1`).Scan(&jsonStr, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}

	var settings types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal settings json", slog.Any("err", err))
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return settings, version, nil
}

// SetSettings upserts the single settings row.
func (s *SQLiteProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO settings (id, json, version) VALUES (1, ?, ?)
ON CONFLICT(id) DO UPDATE SET json = excluded.json, version = excluded.version`,
		string(jsonBytes), version,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ObjectExists reports whether a row with the ID exists.
func (s *SQLiteProvider) ObjectExists(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM points WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	return true, nil
}

// CreateObjectIfAbsent inserts the row unless the ID is already taken.
func (s *SQLiteProvider) CreateObjectIfAbsent(ctx context.Context, id string, meta types.PointMeta) error {
	if err := validID(id); err != nil {
		return err
	}
	metaStr, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO points (id, kind, meta) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, string(meta.Kind), metaStr,
	)
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", id, err)
	}
	return nil
}

// ReadState returns the stored state of the row.
func (s *SQLiteProvider) ReadState(ctx context.Context, id string) (*types.PointState, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	var state sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT state FROM points WHERE id = ?`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	return decodeState(id, state.String)
}

// WriteState updates the state column of an existing row.
func (s *SQLiteProvider) WriteState(ctx context.Context, id string, state types.PointState) error {
	if err := validID(id); err != nil {
		return err
	}
	stateStr, err := encodeState(state)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE points SET state = ?, updated_at = ? WHERE id = ?`,
		stateStr, state.Timestamp.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to write state %s: object does not exist", id)
	}
	return nil
}

// DeleteObject deletes the row if present.
func (s *SQLiteProvider) DeleteObject(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM points WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// ListPoints returns the rows whose ID starts with prefix.
func (s *SQLiteProvider) ListPoints(ctx context.Context, prefix string) ([]types.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, meta, state FROM points WHERE substr(id, 1, length(?)) = ? ORDER BY id`,
		prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	defer rows.Close()

	var points []types.Point
	for rows.Next() {
		var (
			id, meta string
			state    sql.NullString
		)
		if err := rows.Scan(&id, &meta, &state); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p, err := decodePoint(id, meta, state.String)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}
	return points, nil
}
