package app

import "ptscore/domain/proficiency"

// Agrees reports whether a computed category is consistent with an external one.
// An external acceptable only matches a computed acceptable; an external
// unacceptable is matched by a computed questionable or unacceptable.
func Agrees(original, computed proficiency.Classification) bool {
	switch original {
	case proficiency.Acceptable:
		return computed == proficiency.Acceptable
	case proficiency.Unacceptable:
		return computed == proficiency.Questionable || computed == proficiency.Unacceptable
	}
	return false
}

// CompareClassifications checks computed categories against the externally
// supplied ones. Only results with a z-score and an original category take part.
// It returns nil when no result could be compared.
func CompareClassifications(results []proficiency.EvaluationResult) *proficiency.Agreement {
	agreement := &proficiency.Agreement{}
	for _, r := range results {
		if r.ZScore == nil || r.OriginalClassification == nil {
			continue
		}
		agreement.Compared++
		if Agrees(*r.OriginalClassification, r.Classification) {
			agreement.Agreements++
			continue
		}
		agreement.Discrepancies = append(agreement.Discrepancies, proficiency.Discrepancy{
			LabID:    r.LabID,
			Analyte:  r.Analyte,
			SampleID: r.SampleID,
			Result:   *r.Result,
			ZScore:   *r.ZScore,
			Original: *r.OriginalClassification,
			Computed: r.Classification,
		})
	}
	if agreement.Compared == 0 {
		return nil
	}
	agreement.Rate = float64(agreement.Agreements) / float64(agreement.Compared) * 100
	return agreement
}
