// Package robust implements the ISO 13528 Algorithm A/S consensus estimator used
// to derive assigned values and robust standard deviations for proficiency rounds.
package robust

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

const (
	// MADScale makes the median absolute deviation a consistent SD estimator under normality.
	MADScale = 1.483
	// IQRScale converts an interquartile range to an SD estimate under normality.
	IQRScale = 1.349
	// WinsorFactor sets the clipping bound at X* ± 1.5·S*.
	WinsorFactor = 1.5
	// WinsorCorrection is the bias correction for winsorised variance under a normal model.
	WinsorCorrection = 1.134

	DefaultMaxIterations = 50
	DefaultTolerance     = 1e-6
)

var (
	ErrNoObservations = errors.New("robust: no observations")
	ErrNonFinite      = errors.New("robust: non-finite observation")
)

// Method names the path taken to produce an estimate.
type Method string

const (
	MethodSingle    Method = "single"          // n = 1
	MethodClassical Method = "classical"       // n = 2, mean and sample SD
	MethodMAD       Method = "algorithm_a"     // started from scaled MAD
	MethodIQR       Method = "algorithm_a_iqr" // MAD was 0, started from scaled IQR
	MethodSD        Method = "algorithm_a_sd"  // MAD and IQR were 0, started from sample SD
)

// Estimate is the outcome of one robust estimation.
type Estimate struct {
	AssignedValue float64 `json:"assigned_value"` // X*
	SD            float64 `json:"sd"`             // σ*
	Converged     bool    `json:"converged"`
	Iterations    int     `json:"iterations"`
	Method        Method  `json:"method"`
}

// Estimator runs Algorithm A/S with bounded iteration.
type Estimator struct {
	MaxIterations int
	Tolerance     float64
}

// NewEstimator creates an estimator with the ISO 13528 defaults.
func NewEstimator() *Estimator {
	return &Estimator{
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
	}
}

// Estimate computes the robust assigned value and SD of values.
// Non-convergence is reported through Estimate.Converged, never as an error.
func (e *Estimator) Estimate(values []float64) (Estimate, error) {
	if len(values) == 0 {
		return Estimate{}, ErrNoObservations
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Estimate{}, fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}

	// Sorting a private copy fixes the summation order, so results do not
	// depend on input order.
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	n := len(x)

	switch n {
	case 1:
		return Estimate{AssignedValue: x[0], SD: 0, Converged: true, Method: MethodSingle}, nil
	case 2:
		mean, sd := ClassicalMeanSD(x)
		return Estimate{AssignedValue: mean, SD: sd, Converged: true, Method: MethodClassical}, nil
	}

	xStar, sStar, method, err := initialEstimate(x)
	if err != nil {
		return Estimate{}, err
	}

	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := e.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	winsorized := make([]float64, n)
	result := Estimate{Method: method}
	for iter := 1; iter <= maxIter; iter++ {
		result.Iterations = iter

		delta := WinsorFactor * sStar
		lo, hi := xStar-delta, xStar+delta
		for i, v := range x {
			winsorized[i] = math.Min(math.Max(v, lo), hi)
		}

		xNew := stat.Mean(winsorized, nil)
		ss := 0.0
		for _, w := range winsorized {
			d := w - xNew
			ss += d * d
		}
		sNew := WinsorCorrection * math.Sqrt(ss/float64(n-1))

		if math.Abs(xNew-xStar) < tol && math.Abs(sNew-sStar) < tol {
			result.Converged = true
			break
		}

		xStar, sStar = xNew, sNew
	}

	result.AssignedValue = xStar
	result.SD = sStar
	return result, nil
}

// initialEstimate returns the Algorithm A starting point: median and scaled MAD,
// falling back to scaled IQR and then sample SD when the spread collapses to zero.
// x must be sorted.
func initialEstimate(x []float64) (float64, float64, Method, error) {
	median, err := stats.Median(x)
	if err != nil {
		return 0, 0, "", fmt.Errorf("median: %w", err)
	}
	mad, err := stats.MedianAbsoluteDeviation(x)
	if err != nil {
		return 0, 0, "", fmt.Errorf("median absolute deviation: %w", err)
	}

	s := MADScale * mad
	if s != 0 {
		return median, s, MethodMAD, nil
	}

	s = (Quantile(x, 0.75) - Quantile(x, 0.25)) / IQRScale
	if s != 0 {
		return median, s, MethodIQR, nil
	}

	_, sd := ClassicalMeanSD(x)
	return median, sd, MethodSD, nil
}

// ClassicalMeanSD returns the arithmetic mean and Bessel-corrected sample SD.
// The SD of a single value is 0.
func ClassicalMeanSD(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.Mean(x, nil), stat.StdDev(x, nil)
}

// Quantile returns the p-quantile of sorted data using linear interpolation
// between closest ranks (h = (n-1)p), the default of most spreadsheet and
// numeric packages.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	frac := h - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
