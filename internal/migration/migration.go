package migration

import (
	"context"
	"fmt"

	"ptscore/internal"
	"ptscore/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations for the report store
type MigrationRunner struct {
	version string
	driver  string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner for the given driver ("postgres" or "sqlite")
func NewRunner(driver string, logger *internal.Logger) *MigrationRunner {
	if logger == nil {
		logger = internal.Discard()
	}
	return &MigrationRunner{
		version: "1.0.0",
		driver:  driver,
		logger:  logger,
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// dialect holds the column types that differ between drivers.
type dialect struct {
	serial    string
	float     string
	timestamp string
	document  string
}

func (r *MigrationRunner) dialect() (dialect, error) {
	switch r.driver {
	case "postgres":
		return dialect{
			serial:    "BIGSERIAL PRIMARY KEY",
			float:     "DOUBLE PRECISION",
			timestamp: "TIMESTAMP WITH TIME ZONE",
			document:  "JSONB",
		}, nil
	case "sqlite":
		return dialect{
			serial:    "INTEGER PRIMARY KEY AUTOINCREMENT",
			float:     "REAL",
			timestamp: "TIMESTAMP",
			document:  "TEXT",
		}, nil
	}
	return dialect{}, errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", r.driver))
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	d, err := r.dialect()
	if err != nil {
		return err
	}

	if err := r.createReportsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create pt_reports table")
	}

	if err := r.createEvaluationsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create pt_evaluations table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	r.logger.Info("Migrations %s applied (%s)", r.version, r.driver)
	return nil
}

func (r *MigrationRunner) createReportsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS pt_reports (
			code VARCHAR(100) PRIMARY KEY,
			run_id VARCHAR(36) NOT NULL,
			run_date VARCHAR(10) NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			document %s NOT NULL,
			created_at %s NOT NULL
		)
	`, d.document, d.timestamp))
	return err
}

func (r *MigrationRunner) createEvaluationsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS pt_evaluations (
			id %[1]s,
			report_code VARCHAR(100) NOT NULL REFERENCES pt_reports(code) ON DELETE CASCADE,
			lab_id VARCHAR(100) NOT NULL,
			analyte VARCHAR(255) NOT NULL,
			sample_id VARCHAR(100) NOT NULL DEFAULT '',
			result %[2]s NOT NULL,
			unit VARCHAR(50) NOT NULL,
			assigned_value %[2]s NOT NULL,
			robust_sd %[2]s NOT NULL,
			z_score %[2]s,
			classification VARCHAR(2) NOT NULL,
			original_classification VARCHAR(2) NOT NULL DEFAULT ''
		)
	`, d.serial, d.float))
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_evaluations_report_code ON pt_evaluations(report_code)",
		"CREATE INDEX IF NOT EXISTS idx_evaluations_report_analyte ON pt_evaluations(report_code, analyte)",
		"CREATE INDEX IF NOT EXISTS idx_evaluations_lab ON pt_evaluations(lab_id)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			r.logger.Warn("failed to create index: %v", err)
		}
	}

	return nil
}
