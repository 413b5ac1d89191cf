package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
)

// SQLiteStore persists records in a sqlite database. The pure-Go driver
// keeps the backend available on every platform without cgo.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store for the given database path. Init must be
// called before use.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS config_versions (
			version INTEGER PRIMARY KEY,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS recovery_results (
			id TEXT PRIMARY KEY,
			component TEXT NOT NULL,
			end_ts INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recovery_results_component
			ON recovery_results (component, end_ts)`,
		`CREATE TABLE IF NOT EXISTS population_snapshots (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			generation INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("sqlite store not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) SaveConfigVersion(ctx context.Context, config *adaptive.Config) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO config_versions (version, codec_version, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, config.Version, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetConfigVersion(ctx context.Context, version uint64) (*adaptive.Config, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM config_versions WHERE version = ?`, version).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var config adaptive.Config
	if err := json.Unmarshal(payload, &config); err != nil {
		return nil, false, err
	}
	return &config, true, nil
}

func (s *SQLiteStore) ListConfigVersions(ctx context.Context, limit int) ([]*adaptive.Config, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT payload FROM config_versions ORDER BY version DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*adaptive.Config
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var config adaptive.Config
		if err := json.Unmarshal(payload, &config); err != nil {
			return nil, err
		}
		out = append(out, &config)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first, matching the in-memory history ordering.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) SaveRecoveryResult(ctx context.Context, result recovery.Result) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO recovery_results (id, component, end_ts, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, result.ID, result.Component, result.End.UnixNano(), CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) ListRecoveryResults(ctx context.Context, component string, limit int) ([]recovery.Result, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT payload FROM recovery_results`
	args := []any{}
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY end_ts DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recovery.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var result recovery.Result
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) SavePopulationSnapshot(ctx context.Context, generation int, chromosomes []*genetic.Chromosome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodePopulation(generation, chromosomes)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO population_snapshots (id, generation, payload)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation = excluded.generation,
			payload = excluded.payload
	`, generation, payload)
	return err
}

func (s *SQLiteStore) LoadPopulationSnapshot(ctx context.Context) (int, []*genetic.Chromosome, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM population_snapshots WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}

	generation, chromosomes, err := DecodePopulation(payload)
	if err != nil {
		return 0, nil, false, err
	}
	return generation, chromosomes, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
