package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const (
	// MetadataFile holds the id → Record mapping.
	MetadataFile = "metadata.json"
	// CollectedFile holds the list of collected ids.
	CollectedFile = "collected_ids.json"
)

// FileStore keeps the checkpoint as two JSON documents in a directory. Every
// accepted record rewrites both documents atomically.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu        sync.RWMutex
	metadata  map[int]Record
	collected map[int]struct{}
}

// NewFileStore creates a store rooted at dir, creating the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:       dir,
		logger:    logger,
		metadata:  make(map[int]Record),
		collected: make(map[int]struct{}),
	}, nil
}

// Load implements Store. It never fails on corrupt files; those are logged
// and treated as empty. Collected ids may be numbers or numeric strings.
func (s *FileStore) Load(_ context.Context) error {
	metadata := make(map[string]Record)
	if err := s.readJSON(MetadataFile, &metadata); err != nil {
		s.logger.Warn("Ignoring unreadable metadata checkpoint", zap.Error(err))
		metadata = map[string]Record{}
	}
	var rawIDs []json.RawMessage
	if err := s.readJSON(CollectedFile, &rawIDs); err != nil {
		s.logger.Warn("Ignoring unreadable collected-id checkpoint", zap.Error(err))
		rawIDs = nil
	}
	ids := make([]int, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := parseID(raw)
		if err != nil {
			s.logger.Warn("Skipping unparseable collected id", zap.ByteString("id", raw), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = make(map[int]Record, len(metadata))
	for key, rec := range metadata {
		id, err := strconv.Atoi(key)
		if err != nil {
			s.logger.Warn("Skipping metadata record with non-numeric key", zap.String("key", key))
			continue
		}
		rec.ID = id
		s.metadata[id] = rec
	}
	s.collected = make(map[int]struct{}, len(ids))
	dropped := 0
	for _, id := range ids {
		if _, ok := s.metadata[id]; !ok {
			dropped++
			continue
		}
		s.collected[id] = struct{}{}
	}
	s.logger.Info("Checkpoint loaded",
		zap.String("dir", s.dir),
		zap.Int("collected", len(s.collected)),
		zap.Int("records", len(s.metadata)),
		zap.Int("dropped_ids", dropped),
	)
	return nil
}

// IsCollected implements Store.
func (s *FileStore) IsCollected(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collected[id]
	return ok
}

// RecordAccepted implements Store. Metadata is flushed before the collected
// list so a crash between the two writes never leaves a collected id without
// its record.
func (s *FileStore) RecordAccepted(_ context.Context, rec Record) error {
	if rec.ID <= 0 {
		return fmt.Errorf("record id must be positive, got %d", rec.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev := s.metadata[rec.ID]
	_, wasCollected := s.collected[rec.ID]
	s.metadata[rec.ID] = rec
	s.collected[rec.ID] = struct{}{}

	if err := s.flushLocked(); err != nil {
		if hadPrev {
			s.metadata[rec.ID] = prev
		} else {
			delete(s.metadata, rec.ID)
		}
		if !wasCollected {
			delete(s.collected, rec.ID)
		}
		return err
	}
	return nil
}

// Count implements Store.
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collected)
}

// Records implements Store.
func (s *FileStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.metadata))
	for _, rec := range s.metadata {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return a.ID - b.ID })
	return out
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) flushLocked() error {
	metadata := make(map[string]Record, len(s.metadata))
	for id, rec := range s.metadata {
		metadata[strconv.Itoa(id)] = rec
	}
	ids := make([]int, 0, len(s.collected))
	for id := range s.collected {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if err := s.writeJSON(MetadataFile, metadata); err != nil {
		return fmt.Errorf("flush metadata: %w", err)
	}
	if err := s.writeJSON(CollectedFile, ids); err != nil {
		return fmt.Errorf("flush collected ids: %w", err)
	}
	return nil
}

// parseID accepts an id written either as a JSON number or as a numeric string.
func parseID(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("id is neither number nor string: %w", err)
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", str, err)
	}
	return n, nil
}

func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name atomically via a temp file in the same directory.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
