package scoring

import (
	"math"

	"ptscore/domain/proficiency"
)

// Thresholds are the |z| limits of the ISO/IEC 17043 categories.
// |z| <= Acceptable is acceptable; |z| >= Unacceptable is unacceptable.
type Thresholds struct {
	Acceptable   float64 `json:"acceptable"`
	Unacceptable float64 `json:"unacceptable"`
}

// DefaultThresholds returns the standard 2.0 / 3.0 limits.
func DefaultThresholds() Thresholds {
	return Thresholds{Acceptable: 2.0, Unacceptable: 3.0}
}

// ZScore returns (x - assigned) / sd, or nil when x is absent or sd is zero.
func ZScore(x *float64, assigned, sd float64) *float64 {
	if x == nil || sd == 0 {
		return nil
	}
	z := (*x - assigned) / sd
	return &z
}

// Classify maps a z-score to a category using the default thresholds.
func Classify(z *float64) proficiency.Classification {
	return DefaultThresholds().Classify(z)
}

// Classify maps a z-score to a category. Both limits are inclusive on the
// side of the stricter category boundary: |z| = 2 is acceptable, |z| = 3 is not.
func (t Thresholds) Classify(z *float64) proficiency.Classification {
	if z == nil || math.IsNaN(*z) {
		return proficiency.NotReported
	}
	abs := math.Abs(*z)
	switch {
	case abs <= t.Acceptable:
		return proficiency.Acceptable
	case abs < t.Unacceptable:
		return proficiency.Questionable
	default:
		return proficiency.Unacceptable
	}
}

// Score computes the z-score of x and its category in one step.
func (t Thresholds) Score(x *float64, assigned, sd float64) (*float64, proficiency.Classification) {
	z := ZScore(x, assigned, sd)
	return z, t.Classify(z)
}
