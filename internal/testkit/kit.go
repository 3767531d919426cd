// Package testkit provides deterministic fixtures for proficiency round tests.
package testkit

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"ptscore/domain/proficiency"
)

// ConsolidatedHeader is the column layout of a consolidated results file.
var ConsolidatedHeader = []string{"laboratorio", "analito", "muestra", "resultado", "unidad", "evaluacion"}

// Shuffled returns a permuted copy of records. The input is not modified.
func Shuffled(records []proficiency.Record, seed int64) []proficiency.Record {
	out := make([]proficiency.Record, len(records))
	copy(out, records)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ConsolidatedRows renders records as consolidated file rows, header first.
func ConsolidatedRows(records []proficiency.Record) [][]string {
	rows := [][]string{ConsolidatedHeader}
	for _, r := range records {
		result := ""
		if r.Result != nil {
			result = strconv.FormatFloat(*r.Result, 'f', -1, 64)
		}
		original := ""
		if r.OriginalClassification != nil {
			original = string(*r.OriginalClassification)
		}
		rows = append(rows, []string{r.LabID, r.Analyte, r.SampleID, result, r.Unit, original})
	}
	return rows
}

// WriteConsolidatedCSV writes records to path in the consolidated CSV layout.
func WriteConsolidatedCSV(path string, records []proficiency.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create fixture %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(ConsolidatedRows(records)); err != nil {
		return fmt.Errorf("failed to write fixture %s: %w", path, err)
	}
	return f.Close()
}
