// Package storage defines the interface for artifact blob stores.
// This abstraction keeps the harvester independent of where book text lands
// (the local output directory, Google Cloud Storage, or memory in tests).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// BlobStore persists one artifact and returns a URI describing where it went.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Mirror writes every artifact to a primary store and then copies it to each
// secondary. Only a primary failure is returned; secondary failures are logged.
type Mirror struct {
	primary     BlobStore
	secondaries []BlobStore
	logger      *zap.Logger
}

// NewMirror builds a Mirror. Nil secondaries are ignored.
func NewMirror(primary BlobStore, logger *zap.Logger, secondaries ...BlobStore) (*Mirror, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{primary: primary, logger: logger}
	for _, s := range secondaries {
		if s != nil {
			m.secondaries = append(m.secondaries, s)
		}
	}
	return m, nil
}

// PutObject implements BlobStore and returns the primary URI.
func (m *Mirror) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	uri, err := m.primary.PutObject(ctx, path, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	for _, s := range m.secondaries {
		mirrorURI, err := s.PutObject(ctx, path, contentType, bytes.NewReader(data))
		if err != nil {
			m.logger.Warn("Mirror upload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		m.logger.Debug("Mirrored artifact", zap.String("path", path), zap.String("uri", mirrorURI))
	}
	return uri, nil
}
