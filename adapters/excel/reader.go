// Package excel loads consolidated proficiency results from CSV or XLSX files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ptscore/domain/core"
	"ptscore/domain/proficiency"
	"ptscore/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading consolidated Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewDataReader creates a reader for filePath. The format follows the extension.
func NewDataReader(filePath string, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := ""
	switch ext {
	case ".csv":
		fileType = "csv"
	case ".xlsx", ".xlsm":
		fileType = "xlsx"
	}
	if logger == nil {
		logger = internal.Discard()
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// ReadData reads the raw table from the file
func (r *DataReader) ReadData() (*ExcelData, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file not found: %s: %w", r.filePath, err)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFileFormat, filepath.Ext(r.filePath))
	}
}

// readExcelData reads the first sheet of a workbook
func (r *DataReader) readExcelData() (*ExcelData, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	r.logger.Debug("[DataReader] Sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// readCSVData reads a CSV file
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.logger.Debug("[DataReader] CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.processRows(rows)
}

// processRows maps headers to canonical keys and converts rows to RawRowData.
// Unknown columns are kept under their lower-cased header.
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	if len(rows) == 0 {
		return nil, core.ErrEmptyDataset
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))
		if canonical, ok := columnAliases[key]; ok {
			key = canonical
		}
		headers[i] = key
	}

	var dataRows []RawRowData
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowData := make(RawRowData)
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}

	r.logger.Debug("[DataReader] %s file processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(dataRows))

	return &ExcelData{Headers: headers, Rows: dataRows}, nil
}

func isBlankRow(row RawRowData) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// ReadRecords loads the file and converts it to records. It implements ports.RecordReader.
func (r *DataReader) ReadRecords(ctx context.Context) ([]proficiency.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	records, err := r.ToRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.filePath, err)
	}
	r.logger.Info("Loaded %d records from %s", len(records), r.filePath)
	return records, nil
}

// ToRecords validates the columns of data and converts each row to a record.
// Row numbers in errors are 1-based file rows, the header being row 1.
func (r *DataReader) ToRecords(data *ExcelData) ([]proficiency.Record, error) {
	present := make(map[string]bool, len(data.Headers))
	for _, h := range data.Headers {
		present[h] = true
	}
	for _, col := range RequiredColumns {
		if !present[col] {
			return nil, core.NewMissingColumnError(col)
		}
	}
	records := make([]proficiency.Record, 0, len(data.Rows))
	for i, row := range data.Rows {
		line := i + 2
		if isBlankRow(row) {
			continue
		}

		result, err := parseResult(row[ColumnResult])
		if err != nil {
			return nil, core.NewInvalidValueError(ColumnResult, line, row[ColumnResult])
		}

		rec := proficiency.Record{
			LabID:    normalizeLabID(row[ColumnLab]),
			Analyte:  row[ColumnAnalyte],
			SampleID: row[ColumnSample],
			Result:   result,
			Unit:     row[ColumnUnit],
		}
		if rec.LabID == "" {
			return nil, core.NewMissingFieldError(ColumnLab, line)
		}
		if rec.Analyte == "" {
			return nil, core.NewMissingFieldError(ColumnAnalyte, line)
		}

		if raw := row[ColumnClassification]; raw != "" {
			c, err := proficiency.ParseClassification(raw)
			if err != nil {
				r.logger.Warn("Row %d: ignoring unknown %s value %q", line, ColumnClassification, raw)
			} else {
				rec.OriginalClassification = &c
			}
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, core.ErrEmptyDataset
	}
	return records, nil
}

// parseResult returns nil for an empty cell. A lone comma is read as the
// decimal separator.
func parseResult(cell string) (*float64, error) {
	if cell == "" {
		return nil, nil
	}
	if strings.Count(cell, ",") == 1 && !strings.Contains(cell, ".") {
		cell = strings.Replace(cell, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, fmt.Errorf("not a finite number: %q", cell)
	}
	return &v, nil
}

// normalizeLabID drops the fractional part spreadsheets add to numeric ids ("7.0" -> "7").
func normalizeLabID(id string) string {
	if !strings.Contains(id, ".") {
		return id
	}
	v, err := strconv.ParseFloat(id, 64)
	if err != nil || v != math.Trunc(v) || math.Abs(v) > 1e15 {
		return id
	}
	return strconv.FormatInt(int64(v), 10)
}
