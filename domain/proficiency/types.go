package proficiency

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ptscore/domain/core"
)

// ============================================================================
// INPUT
// ============================================================================

// Record is one laboratory's submission for one analyte and sample.
// Result is nil when the laboratory did not report a value.
type Record struct {
	LabID                  string          `json:"lab_id"`
	Analyte                string          `json:"analyte"`
	SampleID               string          `json:"sample_id,omitempty"`
	Result                 *float64        `json:"result"`
	Unit                   string          `json:"unit"`
	OriginalClassification *Classification `json:"original_classification,omitempty"`
}

// HasResult reports whether the record carries a numeric result. NaN counts as absent.
func (r Record) HasResult() bool {
	return r.Result != nil && !math.IsNaN(*r.Result)
}

// Float returns a pointer to v. Convenience for building records.
func Float(v float64) *float64 {
	return &v
}

// ============================================================================
// CLASSIFICATION
// ============================================================================

// Classification is the ISO/IEC 17043 performance category of a z-score.
type Classification string

const (
	Acceptable   Classification = "A"
	Questionable Classification = "C"
	Unacceptable Classification = "I"
	NotReported  Classification = "NR"
)

// AllClassifications lists the categories in reporting order.
var AllClassifications = []Classification{Acceptable, Questionable, Unacceptable, NotReported}

// Label returns the Spanish label used in round reports.
func (c Classification) Label() string {
	switch c {
	case Acceptable:
		return "Aceptable"
	case Questionable:
		return "Cuestionable"
	case Unacceptable:
		return "Inaceptable"
	case NotReported:
		return "No reportado"
	}
	return string(c)
}

// IsValid reports whether c is one of the four known tags.
func (c Classification) IsValid() bool {
	switch c {
	case Acceptable, Questionable, Unacceptable, NotReported:
		return true
	}
	return false
}

// ParseClassification accepts the short tags (A, C, I, NR) and the English or
// Spanish category names, case-insensitively.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "acceptable", "aceptable", "satisfactorio", "satisfactory":
		return Acceptable, nil
	case "c", "q", "questionable", "cuestionable", "warning", "advertencia":
		return Questionable, nil
	case "i", "u", "unacceptable", "inaceptable", "no satisfactorio", "unsatisfactory":
		return Unacceptable, nil
	case "nr", "not reported", "no reportado":
		return NotReported, nil
	}
	return "", fmt.Errorf("%w: unknown classification %q", core.ErrInvalidValue, s)
}

// ============================================================================
// STATISTICS & RESULTS
// ============================================================================

// AnalyteStatistics summarises one analyte group.
// INVARIANTS:
// - RobustSD >= 0
// - CV is 0 when AssignedValue is 0
type AnalyteStatistics struct {
	Analyte       string  `json:"analyte"`
	Unit          string  `json:"unit"`
	N             int     `json:"n"`
	Excluded      int     `json:"excluded"` // records without result
	ClassicalMean float64 `json:"classical_mean"`
	ClassicalSD   float64 `json:"classical_sd"` // ddof = 1
	AssignedValue float64 `json:"assigned_value"`
	RobustSD      float64 `json:"robust_sd"`
	CV            float64 `json:"cv"` // percent
	Converged     bool    `json:"converged"`
	Iterations    int     `json:"iterations"`
	Method        string  `json:"method"`
}

// EvaluationResult joins a record with its group's consensus and score.
type EvaluationResult struct {
	Record
	AssignedValue  float64        `json:"assigned_value"`
	RobustSD       float64        `json:"robust_sd"`
	ZScore         *float64       `json:"z_score"`
	Classification Classification `json:"classification"`
}

// AnalyteEvaluation holds one analyte's statistics and its results sorted by z-score.
type AnalyteEvaluation struct {
	Statistics AnalyteStatistics  `json:"statistics"`
	Results    []EvaluationResult `json:"results"`
}

// Summary counts classifications across the whole run.
// Total counts results with a defined z-score.
type Summary struct {
	Total        int `json:"total"`
	Acceptable   int `json:"acceptable"`
	Questionable int `json:"questionable"`
	Unacceptable int `json:"unacceptable"`
	NotReported  int `json:"not_reported"`
}

// Add counts one classification.
func (s *Summary) Add(c Classification) {
	switch c {
	case Acceptable:
		s.Acceptable++
		s.Total++
	case Questionable:
		s.Questionable++
		s.Total++
	case Unacceptable:
		s.Unacceptable++
		s.Total++
	default:
		s.NotReported++
	}
}

// Percent returns count as a percentage of Total, 0 when nothing was scored.
func (s Summary) Percent(count int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(count) / float64(s.Total) * 100
}

// Discrepancy is a result whose computed category disagrees with the external one.
type Discrepancy struct {
	LabID    string         `json:"lab_id"`
	Analyte  string         `json:"analyte"`
	SampleID string         `json:"sample_id,omitempty"`
	Result   float64        `json:"result"`
	ZScore   float64        `json:"z_score"`
	Original Classification `json:"original"`
	Computed Classification `json:"computed"`
}

// Agreement compares computed categories with externally supplied ones.
type Agreement struct {
	Compared      int           `json:"compared"`
	Agreements    int           `json:"agreements"`
	Rate          float64       `json:"rate"` // percent
	Discrepancies []Discrepancy `json:"discrepancies"`
}

// Diagnostics records soft conditions that did not abort the run.
type Diagnostics struct {
	ExcludedRecords   int            `json:"excluded_records"`
	ExcludedByAnalyte map[string]int `json:"excluded_by_analyte,omitempty"`
	NonConverged      []string       `json:"non_converged,omitempty"`
}

// Report is the terminal output of one evaluation run.
type Report struct {
	RunID       core.RunID          `json:"run_id"`
	Code        string              `json:"code"`
	Date        time.Time           `json:"date"`
	Methodology string              `json:"methodology"`
	Analytes    []AnalyteEvaluation `json:"analytes"`
	Summary     Summary             `json:"summary"`
	Agreement   *Agreement          `json:"agreement,omitempty"`
	Diagnostics Diagnostics         `json:"diagnostics"`
	Fingerprint core.Hash           `json:"fingerprint"` // content hash, excludes run id and date
}

// Results returns every evaluation result in report order.
func (r *Report) Results() []EvaluationResult {
	var out []EvaluationResult
	for _, a := range r.Analytes {
		out = append(out, a.Results...)
	}
	return out
}
