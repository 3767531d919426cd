// Package report renders evaluation reports as the structured document read by
// the web report, the flat audit table and the plain-text statistical summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"ptscore/domain/proficiency"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

// BuildDocument converts a report into the structured document. Values are
// rounded to 2 decimals and CV to 1; laboratories without a z-score are left out.
func BuildDocument(r *proficiency.Report) proficiency.Document {
	doc := proficiency.Document{
		Code:        r.Code,
		Date:        r.Date.Format(dateLayout),
		Methodology: r.Methodology,
		Analytes:    make([]proficiency.AnalyteBlock, 0, len(r.Analytes)),
		Summary: proficiency.DocumentSummary{
			Total:        r.Summary.Total,
			Acceptable:   r.Summary.Acceptable,
			Questionable: r.Summary.Questionable,
			Unacceptable: r.Summary.Unacceptable,
		},
	}

	for _, ev := range r.Analytes {
		st := ev.Statistics
		block := proficiency.AnalyteBlock{
			Name:          st.Analyte,
			Unit:          st.Unit,
			N:             st.N,
			AssignedValue: Round(st.AssignedValue, 2),
			RobustSD:      Round(st.RobustSD, 2),
			CV:            Round(st.CV, 1),
			Labs:          []proficiency.LabEntry{},
		}
		for _, res := range ev.Results {
			if res.ZScore == nil {
				continue
			}
			z := Round(*res.ZScore, 2)
			block.Labs = append(block.Labs, proficiency.LabEntry{
				ID:             res.LabID,
				Result:         *res.Result,
				ZScore:         &z,
				Classification: res.Classification,
			})
		}
		doc.Analytes = append(doc.Analytes, block)
	}
	return doc
}

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc proficiency.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document %s: %w", doc.Code, err)
	}
	return nil
}

// WriteYAML writes the document as YAML.
func WriteYAML(w io.Writer, doc proficiency.Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document %s: %w", doc.Code, err)
	}
	return enc.Close()
}
