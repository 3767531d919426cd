package excel

// RawRowData represents a row of raw data as column-key to cell pairs
type RawRowData map[string]string

// ExcelData represents a complete tabular source
type ExcelData struct {
	Headers []string     // Column headers, trimmed
	Rows    []RawRowData // Data rows, header excluded
}

// Canonical column keys of a consolidated results file.
const (
	ColumnLab            = "laboratorio"
	ColumnAnalyte        = "analito"
	ColumnSample         = "muestra"
	ColumnResult         = "resultado"
	ColumnUnit           = "unidad"
	ColumnClassification = "evaluacion"
)

// RequiredColumns must be present in every consolidated file.
var RequiredColumns = []string{ColumnLab, ColumnAnalyte, ColumnResult, ColumnUnit}

// columnAliases maps accepted header spellings to canonical keys.
var columnAliases = map[string]string{
	"laboratorio":             ColumnLab,
	"lab":                     ColumnLab,
	"lab_id":                  ColumnLab,
	"analito":                 ColumnAnalyte,
	"analyte":                 ColumnAnalyte,
	"muestra":                 ColumnSample,
	"sample":                  ColumnSample,
	"sample_id":               ColumnSample,
	"resultado":               ColumnResult,
	"result":                  ColumnResult,
	"unidad":                  ColumnUnit,
	"unit":                    ColumnUnit,
	"evaluacion":              ColumnClassification,
	"evaluación":              ColumnClassification,
	"original_classification": ColumnClassification,
}
