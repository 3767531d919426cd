package ports

import (
	"context"
	"io"
	"time"

	"ptscore/domain/core"
	"ptscore/domain/proficiency"
)

// StoredReport is what a run persists: the structured document plus the audit rows.
type StoredReport struct {
	RunID       core.RunID
	Fingerprint core.Hash
	CreatedAt   time.Time
	Document    proficiency.Document
	Rows        []proficiency.AuditRow
}

// ReportSummary lists a stored round without its payload.
type ReportSummary struct {
	Code        string    `json:"codigo" db:"code"`
	Date        string    `json:"fecha" db:"run_date"`
	RunID       string    `json:"run_id" db:"run_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// ReportRepository persists evaluation reports keyed by round code.
// Saving a code that already exists replaces the previous report.
type ReportRepository interface {
	Save(ctx context.Context, report *StoredReport) error
	GetDocument(ctx context.Context, code string) (*proficiency.Document, error)
	GetAuditRows(ctx context.Context, code string) ([]proficiency.AuditRow, error)
	List(ctx context.Context) ([]ReportSummary, error)
}

// BlobStore publishes exported files (documents, audit tables) under a key.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
}
