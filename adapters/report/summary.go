package report

import (
	"fmt"
	"io"
	"strings"

	"ptscore/domain/proficiency"
)

// MaxListedDiscrepancies caps the discrepancies printed in the summary.
const MaxListedDiscrepancies = 10

var rule = strings.Repeat("=", 70)

// WriteSummary writes the plain-text statistical report of a run.
func WriteSummary(w io.Writer, r *proficiency.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "REPORTE ESTADÍSTICO - ENSAYO DE APTITUD %s\n", r.Code)
	fmt.Fprintf(&b, "Metodología: %s\n", r.Methodology)
	fmt.Fprintf(&b, "Fecha: %s\n", r.Date.Format(dateLayout))
	fmt.Fprintf(&b, "%s\n\n", rule)
	b.WriteString("PARÁMETROS ESTADÍSTICOS POR ANALITO:\n\n")

	for _, ev := range r.Analytes {
		st := ev.Statistics
		fmt.Fprintf(&b, "%s (%s)\n", st.Analyte, st.Unit)
		fmt.Fprintf(&b, "  n:               %d", st.N)
		if st.Excluded > 0 {
			fmt.Fprintf(&b, " (%d sin resultado excluidos)", st.Excluded)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Media clásica:   %.2f   SD clásica: %.2f\n", st.ClassicalMean, st.ClassicalSD)
		fmt.Fprintf(&b, "  Media robusta:   %.2f   SD robusta: %.2f\n", st.AssignedValue, st.RobustSD)
		fmt.Fprintf(&b, "  CV:              %.1f%%\n", st.CV)
		convergence := "convergió"
		if !st.Converged {
			convergence = "NO convergió"
		}
		fmt.Fprintf(&b, "  Algoritmo:       %s, %d iteraciones, %s\n\n", st.Method, st.Iterations, convergence)
	}

	s := r.Summary
	fmt.Fprintf(&b, "%s\n", rule)
	b.WriteString("RESUMEN GENERAL:\n")
	fmt.Fprintf(&b, "  Total evaluaciones: %d\n", s.Total)
	fmt.Fprintf(&b, "  Aceptables:    %d (%.1f%%)\n", s.Acceptable, s.Percent(s.Acceptable))
	fmt.Fprintf(&b, "  Cuestionables: %d (%.1f%%)\n", s.Questionable, s.Percent(s.Questionable))
	fmt.Fprintf(&b, "  Inaceptables:  %d (%.1f%%)\n", s.Unacceptable, s.Percent(s.Unacceptable))
	if s.NotReported > 0 {
		fmt.Fprintf(&b, "  Sin z-score:   %d\n", s.NotReported)
	}
	if r.Diagnostics.ExcludedRecords > 0 {
		fmt.Fprintf(&b, "  Registros sin resultado excluidos: %d\n", r.Diagnostics.ExcludedRecords)
	}
	if len(r.Diagnostics.NonConverged) > 0 {
		fmt.Fprintf(&b, "  Analitos sin convergencia: %s\n", strings.Join(r.Diagnostics.NonConverged, ", "))
	}

	if a := r.Agreement; a != nil {
		b.WriteString("\nCOMPARACIÓN CON CLASIFICACIÓN ORIGINAL:\n")
		fmt.Fprintf(&b, "  Coincidencias: %d/%d (%.1f%%)\n", a.Agreements, a.Compared, a.Rate)
		fmt.Fprintf(&b, "  Discrepancias: %d\n", len(a.Discrepancies))
		listed := a.Discrepancies
		if len(listed) > MaxListedDiscrepancies {
			listed = listed[:MaxListedDiscrepancies]
		}
		for _, d := range listed {
			fmt.Fprintf(&b, "    Lab %-8s | %-25s | Resultado: %8s | Z: %6.2f | Original: %s (%s) -> Calculado: %s (%s)\n",
				d.LabID, d.Analyte, formatNumber(d.Result), d.ZScore,
				d.Original, d.Original.Label(), d.Computed, d.Computed.Label())
		}
	}

	fmt.Fprintf(&b, "\nRun: %s  Huella: %s\n", r.RunID, r.Fingerprint.Short())

	_, err := io.WriteString(w, b.String())
	return err
}
