package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ptscore/domain/proficiency"

	"github.com/xuri/excelize/v2"
)

const auditSheet = "Evaluaciones"

// AuditRows flattens every scored result, including those without a z-score,
// in report order. Consensus values and z-scores are rounded to 2 decimals.
func AuditRows(r *proficiency.Report) []proficiency.AuditRow {
	rows := make([]proficiency.AuditRow, 0)
	for _, ev := range r.Analytes {
		for _, res := range ev.Results {
			row := proficiency.AuditRow{
				LabID:          res.LabID,
				Analyte:        res.Analyte,
				SampleID:       res.SampleID,
				Result:         *res.Result,
				Unit:           ev.Statistics.Unit,
				AssignedValue:  Round(res.AssignedValue, 2),
				RobustSD:       Round(res.RobustSD, 2),
				Classification: string(res.Classification),
			}
			if res.ZScore != nil {
				z := Round(*res.ZScore, 2)
				row.ZScore = &z
			}
			if res.OriginalClassification != nil {
				row.OriginalClassification = string(*res.OriginalClassification)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func auditRecord(row proficiency.AuditRow) []string {
	z := ""
	if row.ZScore != nil {
		z = formatNumber(*row.ZScore)
	}
	return []string{
		row.LabID, row.Analyte, row.SampleID,
		formatNumber(row.Result), row.Unit,
		formatNumber(row.AssignedValue), formatNumber(row.RobustSD), z,
		row.Classification, row.OriginalClassification,
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteAuditCSV writes the audit table as UTF-8 CSV with a header row.
func WriteAuditCSV(w io.Writer, rows []proficiency.AuditRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(proficiency.AuditHeader); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(auditRecord(row)); err != nil {
			return fmt.Errorf("failed to write audit row for lab %s: %w", row.LabID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAuditXLSX writes the audit table to a single-sheet workbook.
// Numeric columns are stored as numbers; an undefined z-score is an empty cell.
func WriteAuditXLSX(w io.Writer, rows []proficiency.AuditRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", auditSheet); err != nil {
		return fmt.Errorf("failed to name audit sheet: %w", err)
	}

	header := make([]interface{}, len(proficiency.AuditHeader))
	for i, h := range proficiency.AuditHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(auditSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}

	for i, row := range rows {
		var z interface{}
		if row.ZScore != nil {
			z = *row.ZScore
		}
		values := []interface{}{
			row.LabID, row.Analyte, row.SampleID, row.Result, row.Unit,
			row.AssignedValue, row.RobustSD, z,
			row.Classification, row.OriginalClassification,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(auditSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write audit row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write audit workbook: %w", err)
	}
	return nil
}
