//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"qaoa/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func newSQLiteStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	return NewSQLiteStore(path), nil
}

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

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.CreatedAt.UnixNano(), run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Run{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, false, nil
		}
		return model.Run{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.Run{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]model.Run, 0)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		run, err := DecodeRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveSamples(ctx context.Context, runID string, samples []model.Sample) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, idx, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			payload = excluded.payload
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sample := range samples {
		payload, err := EncodeSample(sample)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, runID, sample.Index, payload); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSamples(ctx context.Context, runID string) ([]model.Sample, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM samples WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, false, err
		}
		sample, err := DecodeSample(payload)
		if err != nil {
			return nil, false, fmt.Errorf("decode sample of run %s: %w", runID, err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if samples == nil {
		return nil, false, nil
	}
	return samples, true, nil
}

func (s *SQLiteStore) SaveOptimization(ctx context.Context, opt model.Optimization) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeOptimization(opt)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO optimizations (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, opt.RunID, opt.SchemaVersion, opt.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetOptimization(ctx context.Context, runID string) (model.Optimization, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Optimization{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM optimizations WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Optimization{}, false, nil
		}
		return model.Optimization{}, false, err
	}

	opt, err := DecodeOptimization(payload)
	if err != nil {
		return model.Optimization{}, false, fmt.Errorf("decode optimization %s: %w", runID, err)
	}
	return opt, true, nil
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

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS samples (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
		CREATE TABLE IF NOT EXISTS optimizations (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
