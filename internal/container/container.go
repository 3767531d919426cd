package container

import (
	"context"
	"fmt"

	"ptscore/adapters/blob/fs"
	"ptscore/adapters/blob/s3"
	"ptscore/adapters/sqlstore"
	"ptscore/app"
	"ptscore/internal"
	"ptscore/internal/config"
	"ptscore/internal/errors"
	"ptscore/internal/metrics"
	"ptscore/internal/migration"
	"ptscore/ports"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	// Storage, nil when not configured
	Reports ports.ReportRepository
	Blob    ports.BlobStore

	Evaluation *app.EvaluationService
}

// New creates a container with the metrics registry and evaluation service.
// Storage is attached separately by InitWithDatabase and InitBlobStore.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.Discard()
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)

	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Registry:   reg,
		Metrics:    recorder,
		Evaluation: app.NewEvaluationService(app.EvaluationConfigFrom(cfg), logger, recorder),
	}
	return c, nil
}

// InitWithDatabase opens the report store and runs migrations.
// It is a no-op when no database URL is configured.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if c.Config.Database.URL == "" {
		c.Logger.Debug("no database configured, reports will not be persisted")
		return nil
	}

	db, err := sqlstore.Open(ctx, c.Config.Database.Driver, c.Config.Database.URL)
	if err != nil {
		return err
	}

	if err := migration.NewRunner(c.Config.Database.Driver, c.Logger).Run(ctx, db); err != nil {
		db.Close()
		return errors.Wrap(err, "database migration failed")
	}

	c.DB = db
	c.Reports = sqlstore.NewReportRepository(db)
	c.Logger.Info("report store ready (%s)", c.Config.Database.Driver)
	return nil
}

// InitBlobStore attaches the configured publishing backend, if any.
func (c *Container) InitBlobStore(ctx context.Context) error {
	bc := c.Config.Blob
	switch bc.Backend {
	case "", "none":
		return nil
	case "fs":
		store, err := fs.New(bc.Dir)
		if err != nil {
			return errors.StorageError("failed to open blob directory", err)
		}
		c.Blob = store
	case "s3":
		store, err := s3.New(ctx, bc.Region, bc.Bucket, bc.Prefix)
		if err != nil {
			return errors.ExternalServiceError("s3", err)
		}
		c.Blob = store
	default:
		return errors.ConfigInvalid(fmt.Sprintf("blob.backend %q is not supported", bc.Backend))
	}
	c.Logger.Info("publishing documents via %s backend", bc.Backend)
	return nil
}

// Shutdown releases held resources
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
