package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ptscore/domain/core"
	"ptscore/domain/proficiency"
	apperrors "ptscore/internal/errors"
	"ptscore/ports"

	"github.com/jmoiron/sqlx"
)

const evaluationColumns = `lab_id, analyte, sample_id, result, unit, assigned_value, robust_sd, z_score, classification, original_classification`

// ReportRepositoryImpl implements ports.ReportRepository on sqlx
type ReportRepositoryImpl struct {
	db *sqlx.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sqlx.DB) *ReportRepositoryImpl {
	return &ReportRepositoryImpl{db: db}
}

// Save stores a report and its audit rows, replacing any report with the same code.
func (r *ReportRepositoryImpl) Save(ctx context.Context, report *ports.StoredReport) error {
	document, err := json.Marshal(report.Document)
	if err != nil {
		return apperrors.DatabaseError("failed to encode document", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	code := report.Document.Code
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM pt_evaluations WHERE report_code = ?`), code); err != nil {
		return apperrors.DatabaseError("failed to clear previous evaluations", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM pt_reports WHERE code = ?`), code); err != nil {
		return apperrors.DatabaseError("failed to clear previous report", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO pt_reports (code, run_id, run_date, fingerprint, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), code, report.RunID.String(), report.Document.Date, report.Fingerprint.String(), string(document), report.CreatedAt.UTC())
	if err != nil {
		return apperrors.DatabaseError("failed to insert report", err)
	}

	if len(report.Rows) > 0 {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
			INSERT INTO pt_evaluations (report_code, `+evaluationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return apperrors.DatabaseError("failed to prepare evaluation insert", err)
		}
		defer stmt.Close()

		for _, row := range report.Rows {
			_, err := stmt.ExecContext(ctx, code,
				row.LabID, row.Analyte, row.SampleID, row.Result, row.Unit,
				row.AssignedValue, row.RobustSD, row.ZScore,
				row.Classification, row.OriginalClassification)
			if err != nil {
				return apperrors.DatabaseError(fmt.Sprintf("failed to insert evaluation for lab %s", row.LabID), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit report", err)
	}
	return nil
}

// GetDocument returns the structured document of a round.
func (r *ReportRepositoryImpl) GetDocument(ctx context.Context, code string) (*proficiency.Document, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, r.db.Rebind(`SELECT document FROM pt_reports WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrReportNotFound, code)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load document", err)
	}

	var doc proficiency.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, apperrors.DatabaseError("failed to decode stored document", err)
	}
	return &doc, nil
}

// GetAuditRows returns the audit table of a round in evaluation order.
func (r *ReportRepositoryImpl) GetAuditRows(ctx context.Context, code string) ([]proficiency.AuditRow, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, r.db.Rebind(`SELECT COUNT(1) FROM pt_reports WHERE code = ?`), code)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to look up report", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrReportNotFound, code)
	}

	rows := []proficiency.AuditRow{}
	err = r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+evaluationColumns+`
		FROM pt_evaluations
		WHERE report_code = ?
		ORDER BY id
	`), code)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load evaluations", err)
	}
	return rows, nil
}

// List returns the stored rounds ordered by code.
func (r *ReportRepositoryImpl) List(ctx context.Context) ([]ports.ReportSummary, error) {
	summaries := []ports.ReportSummary{}
	err := r.db.SelectContext(ctx, &summaries, `
		SELECT code, run_date, run_id, fingerprint, created_at
		FROM pt_reports
		ORDER BY code
	`)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list reports", err)
	}
	return summaries, nil
}
