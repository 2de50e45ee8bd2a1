//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"activelearn/internal/model"

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

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, scope string, cp model.Checkpoint) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO checkpoints (scope, prefix, epoch, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, prefix) DO UPDATE SET
			epoch = excluded.epoch,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, scope, cp.Prefix, cp.Epoch, cp.SchemaVersion, cp.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, scope, prefix string) (model.Checkpoint, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Checkpoint{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE scope = ? AND prefix = ?`, scope, prefix).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, err
	}

	cp, err := DecodeCheckpoint(payload)
	if err != nil {
		return model.Checkpoint{}, false, errors.Wrapf(err, "decode checkpoint %s/%s", scope, prefix)
	}
	return cp, true, nil
}

func (s *SQLiteStore) SaveEpochMetrics(ctx context.Context, runID string, metrics []model.EpochMetrics) error {
	payload, err := EncodeEpochMetrics(metrics)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "epoch_metrics", runID, payload)
}

func (s *SQLiteStore) GetEpochMetrics(ctx context.Context, runID string) ([]model.EpochMetrics, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "epoch_metrics", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	metrics, err := DecodeEpochMetrics(payload)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode epoch metrics %s", runID)
	}
	return metrics, true, nil
}

func (s *SQLiteStore) SaveRoundResults(ctx context.Context, runID string, results []model.RoundResult) error {
	payload, err := EncodeRoundResults(results)
	if err != nil {
		return err
	}
	return s.putRunPayload(ctx, "round_results", runID, payload)
}

func (s *SQLiteStore) GetRoundResults(ctx context.Context, runID string) ([]model.RoundResult, bool, error) {
	payload, ok, err := s.getRunPayload(ctx, "round_results", runID)
	if err != nil || !ok {
		return nil, false, err
	}
	results, err := DecodeRoundResults(payload)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode round results %s", runID)
	}
	return results, true, nil
}

// putRunPayload and getRunPayload serve the run-keyed tables. table is
// always one of the constants above, never user input.
func (s *SQLiteStore) putRunPayload(ctx context.Context, table, runID string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+table+` (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) getRunPayload(ctx context.Context, table, runID string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM `+table+` WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
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
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			scope TEXT NOT NULL,
			prefix TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (scope, prefix)
		);
		CREATE TABLE IF NOT EXISTS epoch_metrics (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS round_results (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
