package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/Spyderisk/system-modeller-sub004/threat"
	"github.com/Spyderisk/system-modeller-sub004/validator"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id TEXT PRIMARY KEY,
	system_model_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	domain_version TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS assessments_system ON assessments(system_model_id, created_at);
CREATE TABLE IF NOT EXISTS control_set_states (
	system_model_id TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);`

// SQLite stores assessments in a single database file.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens or creates the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = "riskengine.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// SaveAssessment implements Store.
func (s *SQLite) SaveAssessment(ctx context.Context, systemModelID string, a *validator.Assessment) error {
	rec, err := encodeAssessment(systemModelID, a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments(id,system_model_id,domain,domain_version,created_at,payload) VALUES(?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET system_model_id=excluded.system_model_id, domain=excluded.domain,
		domain_version=excluded.domain_version, created_at=excluded.created_at, payload=excluded.payload`,
		rec.ID, rec.SystemModelID, a.Domain, a.DomainVersion, rec.CreatedAt.UnixNano(), rec.Payload)
	if err != nil {
		return fmt.Errorf("%w: upsert assessment %s: %v", ErrStorageFailed, rec.ID, err)
	}
	return nil
}

// LoadAssessment implements Store.
func (s *SQLite) LoadAssessment(ctx context.Context, id string) (*validator.Assessment, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM assessments WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: select assessment %s: %v", ErrStorageFailed, id, err)
	}
	return decodeAssessment(payload)
}

// LatestAssessment implements Store.
func (s *SQLite) LatestAssessment(ctx context.Context, systemModelID string) (*validator.Assessment, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM assessments WHERE system_model_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		systemModelID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("system model %s: %w", systemModelID, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: select latest assessment of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	return decodeAssessment(payload)
}

// DeleteAssessment implements Store.
func (s *SQLite) DeleteAssessment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete assessment %s: %v", ErrStorageFailed, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete assessment %s: %v", ErrStorageFailed, id, err)
	}
	if n == 0 {
		return fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveControlSetStates implements Store.
func (s *SQLite) SaveControlSetStates(ctx context.Context, systemModelID string, states []threat.ControlSetState) error {
	data, err := encodeStates(systemModelID, states)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO control_set_states(system_model_id,payload) VALUES(?,?)
		ON CONFLICT(system_model_id) DO UPDATE SET payload=excluded.payload`,
		systemModelID, data)
	if err != nil {
		return fmt.Errorf("%w: upsert control set states of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	return nil
}

// LoadControlSetStates implements Store.
func (s *SQLite) LoadControlSetStates(ctx context.Context, systemModelID string) ([]threat.ControlSetState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM control_set_states WHERE system_model_id = ?`, systemModelID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []threat.ControlSetState{}, nil
		}
		return nil, fmt.Errorf("%w: select control set states of %s: %v", ErrStorageFailed, systemModelID, err)
	}
	return decodeStates(payload)
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }
