package report

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"ptscore/domain/proficiency"
)

// Output locations relative to the output directory.
const (
	AuditCSVFile  = "ensayos_con_zscore.csv"
	AuditXLSXFile = "ensayos_con_zscore.xlsx"
	SummaryFile   = "reporte_estadistico.txt"
	DocumentDir   = "informes"
)

// DocumentKey is the slash-separated location of a round's JSON document,
// used both on disk and as the published object key.
func DocumentKey(code string) string {
	return path.Join(DocumentDir, code+".json")
}

// ExportOptions selects the optional formats.
type ExportOptions struct {
	XLSX bool
	YAML bool
}

// Outputs lists the files written by Export.
type Outputs struct {
	Document  string `json:"document"`
	YAML      string `json:"yaml,omitempty"`
	AuditCSV  string `json:"audit_csv"`
	AuditXLSX string `json:"audit_xlsx,omitempty"`
	Summary   string `json:"summary"`
}

// Files returns the written paths in a stable order.
func (o Outputs) Files() []string {
	files := []string{o.AuditCSV}
	if o.AuditXLSX != "" {
		files = append(files, o.AuditXLSX)
	}
	files = append(files, o.Summary, o.Document)
	if o.YAML != "" {
		files = append(files, o.YAML)
	}
	return files
}

// Exporter writes every artefact of a run below one directory.
type Exporter struct {
	dir  string
	opts ExportOptions
}

// NewExporter creates an exporter rooted at dir.
func NewExporter(dir string, opts ExportOptions) *Exporter {
	return &Exporter{dir: dir, opts: opts}
}

// Export writes the audit table, summary and structured document of r.
func (e *Exporter) Export(r *proficiency.Report) (Outputs, error) {
	var out Outputs
	rows := AuditRows(r)
	doc := BuildDocument(r)

	out.AuditCSV = filepath.Join(e.dir, AuditCSVFile)
	if err := writeFile(out.AuditCSV, func(w io.Writer) error { return WriteAuditCSV(w, rows) }); err != nil {
		return Outputs{}, err
	}

	if e.opts.XLSX {
		out.AuditXLSX = filepath.Join(e.dir, AuditXLSXFile)
		if err := writeFile(out.AuditXLSX, func(w io.Writer) error { return WriteAuditXLSX(w, rows) }); err != nil {
			return Outputs{}, err
		}
	}

	out.Summary = filepath.Join(e.dir, SummaryFile)
	if err := writeFile(out.Summary, func(w io.Writer) error { return WriteSummary(w, r) }); err != nil {
		return Outputs{}, err
	}

	out.Document = filepath.Join(e.dir, filepath.FromSlash(DocumentKey(r.Code)))
	if err := writeFile(out.Document, func(w io.Writer) error { return WriteJSON(w, doc) }); err != nil {
		return Outputs{}, err
	}

	if e.opts.YAML {
		out.YAML = filepath.Join(e.dir, DocumentDir, r.Code+".yaml")
		if err := writeFile(out.YAML, func(w io.Writer) error { return WriteYAML(w, doc) }); err != nil {
			return Outputs{}, err
		}
	}

	return out, nil
}

func writeFile(name string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}
