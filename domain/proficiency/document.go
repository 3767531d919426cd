package proficiency

// ============================================================================
// EXPORT CONTRACTS
// The structured document is the only contract with the web report, which
// reads these Spanish keys directly.
// ============================================================================

// Document is the nested structured report consumed by the visualisation front end.
type Document struct {
	Code        string          `json:"codigo" yaml:"codigo"`
	Date        string          `json:"fecha" yaml:"fecha"` // YYYY-MM-DD
	Methodology string          `json:"metodologia" yaml:"metodologia"`
	Analytes    []AnalyteBlock  `json:"analitos" yaml:"analitos"`
	Summary     DocumentSummary `json:"resumen" yaml:"resumen"`
}

// AnalyteBlock is one analyte section of the document.
type AnalyteBlock struct {
	Name          string     `json:"nombre" yaml:"nombre"`
	Unit          string     `json:"unidad" yaml:"unidad"`
	N             int        `json:"n" yaml:"n"`
	AssignedValue float64    `json:"valor_asignado" yaml:"valor_asignado"`
	RobustSD      float64    `json:"sd_robusta" yaml:"sd_robusta"`
	CV            float64    `json:"cv" yaml:"cv"`
	Labs          []LabEntry `json:"laboratorios" yaml:"laboratorios"`
}

// LabEntry is one laboratory line inside an analyte block, ordered by z-score.
type LabEntry struct {
	ID             string         `json:"id" yaml:"id"`
	Result         float64        `json:"resultado" yaml:"resultado"`
	ZScore         *float64       `json:"z_score" yaml:"z_score"`
	Classification Classification `json:"clasificacion" yaml:"clasificacion"`
}

// DocumentSummary holds the global classification counts.
type DocumentSummary struct {
	Total        int `json:"total" yaml:"total"`
	Acceptable   int `json:"aceptables" yaml:"aceptables"`
	Questionable int `json:"cuestionables" yaml:"cuestionables"`
	Unacceptable int `json:"inaceptables" yaml:"inaceptables"`
}

// AuditRow is one flat, fully traceable evaluation line.
type AuditRow struct {
	LabID                  string   `json:"laboratorio" db:"lab_id"`
	Analyte                string   `json:"analito" db:"analyte"`
	SampleID               string   `json:"muestra" db:"sample_id"`
	Result                 float64  `json:"resultado" db:"result"`
	Unit                   string   `json:"unidad" db:"unit"`
	AssignedValue          float64  `json:"valor_asignado" db:"assigned_value"`
	RobustSD               float64  `json:"sd_robusta" db:"robust_sd"`
	ZScore                 *float64 `json:"z_score" db:"z_score"`
	Classification         string   `json:"clasificacion_calculada" db:"classification"`
	OriginalClassification string   `json:"clasificacion_original" db:"original_classification"`
}

// AuditHeader is the column order of the audit table.
var AuditHeader = []string{
	"laboratorio", "analito", "muestra", "resultado", "unidad",
	"valor_asignado", "sd_robusta", "z_score",
	"clasificacion_calculada", "clasificacion_original",
}
