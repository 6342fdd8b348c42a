package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/checkpoint"
	"github.com/JakeFAU/book-harvester/internal/config"
	"github.com/JakeFAU/book-harvester/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/book-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/book-harvester/internal/storage"
	"github.com/JakeFAU/book-harvester/internal/storage/gcs"
	"github.com/JakeFAU/book-harvester/internal/storage/local"
	"github.com/JakeFAU/book-harvester/internal/storage/postgres"
	"github.com/JakeFAU/book-harvester/internal/store"
)

// resources collects everything opened for a command so it can be released
// in reverse order.
type resources struct {
	closers []func() error
	logger  *zap.Logger
}

func (r *resources) add(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
	r.closers = nil
}

// openPool connects to Postgres when a DSN is configured. A nil pool means
// Postgres is not in use.
func openPool(ctx context.Context, cfg config.Config, res *resources) (postgres.Pool, error) {
	if cfg.DB.DSN == "" {
		return nil, nil
	}
	pool, err := postgres.Open(ctx, postgres.PoolConfig{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return nil, err
	}
	res.add(func() error { pool.Close(); return nil })
	return pool, nil
}

// openCheckpoint builds and loads the configured checkpoint backend.
func openCheckpoint(ctx context.Context, cfg config.Config, pool postgres.Pool, logger *zap.Logger) (checkpoint.Store, error) {
	var (
		cp  checkpoint.Store
		err error
	)
	switch cfg.Checkpoint.Backend {
	case config.BackendPostgres:
		if pool == nil {
			return nil, errors.New("postgres checkpoint requires db.dsn")
		}
		pg, pgErr := postgres.NewCheckpointStore(pool, cfg.DB.Table, logger.Named("checkpoint"))
		if pgErr != nil {
			return nil, pgErr
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		cp = pg
	default:
		cp, err = checkpoint.NewFileStore(cfg.Output.Dir, logger.Named("checkpoint"))
		if err != nil {
			return nil, err
		}
	}
	if err := cp.Load(ctx); err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// openRunStore returns the run history repository, or nil without Postgres.
func openRunStore(ctx context.Context, cfg config.Config, pool postgres.Pool) (store.RunRepository, error) {
	if pool == nil {
		return nil, nil
	}
	runs, err := postgres.NewRunStore(pool, cfg.DB.RunsTable)
	if err != nil {
		return nil, err
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return runs, nil
}

// openBlobs writes book texts under OUTPUT_DIR and mirrors them to GCS when a
// bucket is configured.
func openBlobs(ctx context.Context, cfg config.Config, res *resources, logger *zap.Logger) (storage.BlobStore, error) {
	primary, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
	if err != nil {
		return nil, fmt.Errorf("init output dir: %w", err)
	}
	var secondaries []storage.BlobStore
	if cfg.Storage.GCSBucket != "" {
		bucket, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			return nil, err
		}
		res.add(bucket.Close)
		secondaries = append(secondaries, bucket)
		logger.Info("Mirroring books to GCS", zap.String("bucket", cfg.Storage.GCSBucket))
	}
	if len(secondaries) == 0 {
		return primary, nil
	}
	return storage.NewMirror(primary, logger.Named("mirror"), secondaries...)
}

// openPublisher returns a Pub/Sub publisher, or nil when no topic is set.
func openPublisher(ctx context.Context, cfg config.Config, res *resources) (publisher.Publisher, error) {
	if cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, err
	}
	res.add(pub.Close)
	return pub, nil
}
