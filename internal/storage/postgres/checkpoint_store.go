package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/checkpoint"
)

// DefaultCheckpointTable is used when no table name is configured.
const DefaultCheckpointTable = "harvested_books"

// CheckpointStore implements checkpoint.Store on a Postgres table. Accepted
// records are cached in memory after Load so IsCollected never touches the database.
type CheckpointStore struct {
	pool   Pool
	table  string
	logger *zap.Logger

	mu      sync.RWMutex
	records map[int]checkpoint.Record
}

var _ checkpoint.Store = (*CheckpointStore)(nil)

// NewCheckpointStore builds a store over pool. The pool is not closed by Close.
func NewCheckpointStore(pool Pool, table string, logger *zap.Logger) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, DefaultCheckpointTable)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointStore{
		pool:    pool,
		table:   table,
		logger:  logger,
		records: make(map[int]checkpoint.Record),
	}, nil
}

// EnsureSchema creates the checkpoint table when it does not exist.
func (s *CheckpointStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	record JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Load implements checkpoint.Store. Rows whose record cannot be decoded are skipped.
func (s *CheckpointStore) Load(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id, record FROM %s ORDER BY id`, s.table))
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	defer rows.Close()

	records := make(map[int]checkpoint.Record)
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan checkpoint row: %w", err)
		}
		var rec checkpoint.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("Skipping undecodable checkpoint row", zap.Int64("id", id), zap.Error(err))
			continue
		}
		rec.ID = int(id)
		records[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate checkpoint rows: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	s.logger.Info("Checkpoint loaded", zap.String("table", s.table), zap.Int("collected", len(records)))
	return nil
}

// IsCollected implements checkpoint.Store.
func (s *CheckpointStore) IsCollected(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// RecordAccepted implements checkpoint.Store. The cache is updated only after
// the upsert commits.
func (s *CheckpointStore) RecordAccepted(ctx context.Context, rec checkpoint.Record) error {
	if rec.ID <= 0 {
		return fmt.Errorf("record id must be positive, got %d", rec.ID)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %d: %w", rec.ID, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, record, saved_at)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`, s.table)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.pool.Exec(ctx, query, int64(rec.ID), payload, rec.SavedAt); err != nil {
		return fmt.Errorf("upsert record %d: %w", rec.ID, err)
	}
	s.records[rec.ID] = rec
	return nil
}

// Count implements checkpoint.Store.
func (s *CheckpointStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records implements checkpoint.Store.
func (s *CheckpointStore) Records() []checkpoint.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]checkpoint.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b checkpoint.Record) int { return a.ID - b.ID })
	return out
}

// Close implements checkpoint.Store. The pool belongs to the caller.
func (s *CheckpointStore) Close() error { return nil }
