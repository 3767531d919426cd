package app

import (
	"context"
	"math"
	"testing"
	"time"

	docs "ptscore/adapters/report"
	"ptscore/domain/core"
	"ptscore/domain/proficiency"
	"ptscore/internal"
	"ptscore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedDate = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func testConfig() EvaluationConfig {
	return EvaluationConfig{
		Code:          "EA-001-2025",
		MaxIterations: 50,
		Tolerance:     1e-6,
		Workers:       4,
		Clock:         func() time.Time { return fixedDate },
	}
}

func newTestService(cfg EvaluationConfig) *EvaluationService {
	return NewEvaluationService(cfg, internal.Discard(), nil)
}

func labRecords(analyte, unit string, labs []string, values []float64) []proficiency.Record {
	records := make([]proficiency.Record, len(values))
	for i, v := range values {
		records[i] = proficiency.Record{
			LabID:    labs[i],
			Analyte:  analyte,
			SampleID: "M1",
			Result:   proficiency.Float(v),
			Unit:     unit,
		}
	}
	return records
}

func TestEvaluateGlucosaRound(t *testing.T) {
	tests := []struct {
		name        string
		values      []float64
		robustSD    float64
		classicalSD float64
	}{
		{"tight round", []float64{100, 95, 105, 98, 102}, 4.318143351024836, 3.8078865529319543},
		{"evenly spaced round", []float64{100, 90, 110, 95, 105}, 8.965057166577354, 7.905694150420948},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := labRecords("Glucosa", "mg/dL",
				[]string{"LAB-03", "LAB-01", "LAB-05", "LAB-02", "LAB-04"}, tt.values)

			report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
			require.NoError(t, err)

			require.Len(t, report.Analytes, 1)
			st := report.Analytes[0].Statistics
			assert.Equal(t, "Glucosa", st.Analyte)
			assert.Equal(t, "mg/dL", st.Unit)
			assert.Equal(t, 5, st.N)
			assert.InDelta(t, 100.0, st.AssignedValue, 1e-9)
			assert.InDelta(t, tt.robustSD, st.RobustSD, 1e-9)
			assert.InDelta(t, 100.0, st.ClassicalMean, 1e-9)
			assert.InDelta(t, tt.classicalSD, st.ClassicalSD, 1e-9)
			assert.InDelta(t, tt.robustSD, st.CV, 1e-9)
			assert.True(t, st.Converged)

			results := report.Analytes[0].Results
			require.Len(t, results, 5)
			var order []string
			for _, r := range results {
				order = append(order, r.LabID)
				assert.Equal(t, proficiency.Acceptable, r.Classification)
			}
			assert.Equal(t, []string{"LAB-01", "LAB-02", "LAB-03", "LAB-04", "LAB-05"}, order)

			// LAB-03 reports the consensus value exactly.
			assert.Equal(t, 100.0, *results[2].Result)
			require.NotNil(t, results[2].ZScore)
			assert.InDelta(t, 0.0, *results[2].ZScore, 1e-12)

			assert.Equal(t, proficiency.Summary{Total: 5, Acceptable: 5}, report.Summary)
			assert.Equal(t, "EA-001-2025", report.Code)
			assert.Equal(t, fixedDate, report.Date)
			assert.NotEmpty(t, report.Methodology)
			assert.Nil(t, report.Agreement)
			assert.Equal(t, core.DeriveRunID(report.Code, report.Fingerprint), report.RunID)
		})
	}
}

func TestEvaluateZeroConsensusHasZeroCV(t *testing.T) {
	records := labRecords("Temperatura", "°C",
		[]string{"L1", "L2", "L3", "L4", "L5"},
		[]float64{-2, -1, 0, 1, 2})

	rep, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	st := rep.Analytes[0].Statistics
	assert.Equal(t, 0.0, st.AssignedValue)
	assert.Greater(t, st.RobustSD, 0.0)
	assert.Equal(t, 0.0, st.CV)
	assert.False(t, math.IsNaN(st.CV) || math.IsInf(st.CV, 0))

	doc := docs.BuildDocument(rep)
	require.Len(t, doc.Analytes, 1)
	assert.Equal(t, 0.0, doc.Analytes[0].CV)
	assert.Equal(t, 0.0, doc.Analytes[0].AssignedValue)
	assert.False(t, math.Signbit(doc.Analytes[0].CV))
}

func TestEvaluateTrimsAnalyteNames(t *testing.T) {
	records := []proficiency.Record{
		{LabID: "L1", Analyte: "Glucosa", Result: proficiency.Float(99), Unit: "mg/dL"},
		{LabID: "L2", Analyte: "Glucosa ", Result: proficiency.Float(100), Unit: "mg/dL"},
		{LabID: " L3", Analyte: " Glucosa", Result: proficiency.Float(101), Unit: "mg/dL"},
		{LabID: "L4", Analyte: "Glucosa\t"},
	}

	rep, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, rep.Analytes, 1)
	st := rep.Analytes[0].Statistics
	assert.Equal(t, "Glucosa", st.Analyte)
	assert.Equal(t, 3, st.N)
	assert.Equal(t, 1, st.Excluded)
	assert.Equal(t, map[string]int{"Glucosa": 1}, rep.Diagnostics.ExcludedByAnalyte)
	for _, r := range rep.Analytes[0].Results {
		assert.Equal(t, "Glucosa", r.Analyte)
	}
	assert.Equal(t, "L3", rep.Analytes[0].Results[2].LabID)
}

func TestEvaluateOutlierIsUnacceptable(t *testing.T) {
	records := labRecords("Colesterol", "mg/dL",
		[]string{"L1", "L2", "L3", "L4", "L5", "L6"},
		[]float64{98, 99, 100, 101, 102, 500})

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	st := report.Analytes[0].Statistics
	assert.InDelta(t, 100.87032885070202, st.AssignedValue, 1e-9)
	assert.InDelta(t, 2.901097785089223, st.RobustSD, 1e-9)

	results := report.Analytes[0].Results
	last := results[len(results)-1]
	assert.Equal(t, "L6", last.LabID)
	assert.Equal(t, proficiency.Unacceptable, last.Classification)
	assert.Equal(t, proficiency.Summary{Total: 6, Acceptable: 5, Unacceptable: 1}, report.Summary)
}

func TestEvaluateAnalytesInLexicographicOrder(t *testing.T) {
	labs := []string{"L1", "L2", "L3"}
	var records []proficiency.Record
	records = append(records, labRecords("Urea", "mg/dL", labs, []float64{30, 31, 29})...)
	records = append(records, labRecords("Colesterol", "mg/dL", labs, []float64{190, 195, 185})...)
	records = append(records, labRecords("Glucosa", "mg/dL", labs, []float64{100, 101, 99})...)

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	var names []string
	for _, a := range report.Analytes {
		names = append(names, a.Statistics.Analyte)
	}
	assert.Equal(t, []string{"Colesterol", "Glucosa", "Urea"}, names)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	records := testkit.NewRoundGenerator(testkit.DefaultRoundConfig()).Generate()
	svc := newTestService(testConfig())

	first, err := svc.Evaluate(context.Background(), records)
	require.NoError(t, err)
	second, err := svc.Evaluate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	later := testConfig()
	later.Clock = func() time.Time { return fixedDate.Add(48 * time.Hour) }
	third, err := newTestService(later).Evaluate(context.Background(), records)
	require.NoError(t, err)
	assert.NotEqual(t, first.Date, third.Date)
	assert.Equal(t, first.Fingerprint, third.Fingerprint)
	assert.Equal(t, first.RunID, third.RunID)
	assert.Equal(t, first.Analytes, third.Analytes)
}

func TestEvaluateIsPermutationInvariant(t *testing.T) {
	records := testkit.NewRoundGenerator(testkit.DefaultRoundConfig()).Generate()

	sequential := testConfig()
	sequential.Workers = 1
	base, err := newTestService(sequential).Evaluate(context.Background(), records)
	require.NoError(t, err)

	for _, seed := range []int64{1, 2, 3} {
		shuffled := testkit.Shuffled(records, seed)
		report, err := newTestService(testConfig()).Evaluate(context.Background(), shuffled)
		require.NoError(t, err)
		assert.Equal(t, base.Analytes, report.Analytes, "seed %d", seed)
		assert.Equal(t, base.Fingerprint, report.Fingerprint, "seed %d", seed)
		assert.Equal(t, base.Summary, report.Summary, "seed %d", seed)
	}
}

func TestEvaluateHardFailures(t *testing.T) {
	tests := []struct {
		name    string
		records []proficiency.Record
		want    error
	}{
		{"empty dataset", nil, core.ErrEmptyDataset},
		{
			"missing lab",
			[]proficiency.Record{{Analyte: "Glucosa", Result: proficiency.Float(1)}},
			core.ErrMissingField,
		},
		{
			"missing analyte",
			[]proficiency.Record{{LabID: "L1", Result: proficiency.Float(1)}},
			core.ErrMissingField,
		},
		{
			"analyte without results",
			[]proficiency.Record{
				{LabID: "L1", Analyte: "Glucosa", Result: proficiency.Float(100)},
				{LabID: "L1", Analyte: "Urea"},
				{LabID: "L2", Analyte: "Urea"},
			},
			core.ErrNoUsableObservations,
		},
		{
			"infinite result",
			[]proficiency.Record{{LabID: "L1", Analyte: "Glucosa", Result: proficiency.Float(math.Inf(1))}},
			core.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestService(testConfig()).Evaluate(context.Background(), tt.records)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsInputError(err))
		})
	}
}

func TestEvaluateSoftDiagnostics(t *testing.T) {
	records := labRecords("Colesterol", "mg/dL",
		[]string{"L1", "L2", "L3", "L4", "L5", "L6"},
		[]float64{98, 99, 100, 101, 102, 500})
	records = append(records, proficiency.Record{LabID: "L7", Analyte: "Colesterol", SampleID: "M1", Unit: "mg/dL"})

	cfg := testConfig()
	cfg.MaxIterations = 1
	report, err := newTestService(cfg).Evaluate(context.Background(), records)
	require.NoError(t, err)

	st := report.Analytes[0].Statistics
	assert.False(t, st.Converged)
	assert.Equal(t, 6, st.N)
	assert.Equal(t, 1, st.Excluded)
	assert.InDelta(t, 100.63945833333332, st.AssignedValue, 1e-9)
	assert.InDelta(t, 2.393100531205985, st.RobustSD, 1e-9)

	assert.Equal(t, 1, report.Diagnostics.ExcludedRecords)
	assert.Equal(t, map[string]int{"Colesterol": 1}, report.Diagnostics.ExcludedByAnalyte)
	assert.Equal(t, []string{"Colesterol"}, report.Diagnostics.NonConverged)
	assert.Len(t, report.Analytes[0].Results, 6)
}

func TestEvaluateZeroSpreadIsNotReported(t *testing.T) {
	records := labRecords("Sodio", "mmol/L", []string{"L1", "L2", "L3"}, []float64{7, 7, 7})

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	st := report.Analytes[0].Statistics
	assert.Equal(t, 7.0, st.AssignedValue)
	assert.Equal(t, 0.0, st.RobustSD)
	for _, r := range report.Analytes[0].Results {
		assert.Nil(t, r.ZScore)
		assert.Equal(t, proficiency.NotReported, r.Classification)
	}
	assert.Equal(t, proficiency.Summary{NotReported: 3}, report.Summary)
}

func TestEvaluateSmallGroups(t *testing.T) {
	var records []proficiency.Record
	records = append(records, labRecords("A", "u", []string{"L1"}, []float64{42})...)
	records = append(records, labRecords("B", "u", []string{"L1", "L2"}, []float64{10, 20})...)

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	single := report.Analytes[0]
	assert.Equal(t, 42.0, single.Statistics.AssignedValue)
	assert.Equal(t, 0.0, single.Statistics.RobustSD)
	assert.Equal(t, proficiency.NotReported, single.Results[0].Classification)

	pair := report.Analytes[1]
	assert.InDelta(t, 15.0, pair.Statistics.AssignedValue, 1e-12)
	assert.InDelta(t, 7.0710678118654755, pair.Statistics.RobustSD, 1e-12)
	for _, r := range pair.Results {
		assert.Equal(t, proficiency.Acceptable, r.Classification)
	}
}

func TestEvaluateUnknownUnit(t *testing.T) {
	records := labRecords("Glucosa", "", []string{"L1", "L2", "L3"}, []float64{1, 2, 3})

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "?", report.Analytes[0].Statistics.Unit)
}

func TestEvaluateAgreementWithOriginal(t *testing.T) {
	a := proficiency.Acceptable
	i := proficiency.Unacceptable
	records := labRecords("Colesterol", "mg/dL",
		[]string{"L1", "L2", "L3", "L4", "L5", "L6"},
		[]float64{98, 99, 100, 101, 102, 500})
	for k := range records {
		records[k].OriginalClassification = &a
	}
	records[5].OriginalClassification = &i
	records[0].OriginalClassification = &i // computed A, so a discrepancy

	report, err := newTestService(testConfig()).Evaluate(context.Background(), records)
	require.NoError(t, err)

	require.NotNil(t, report.Agreement)
	assert.Equal(t, 6, report.Agreement.Compared)
	assert.Equal(t, 5, report.Agreement.Agreements)
	require.Len(t, report.Agreement.Discrepancies, 1)
	assert.Equal(t, "L1", report.Agreement.Discrepancies[0].LabID)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := labRecords("Glucosa", "mg/dL", []string{"L1", "L2", "L3"}, []float64{1, 2, 3})
	_, err := newTestService(testConfig()).Evaluate(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RunFinished(status string, elapsed time.Duration) {
	m.Called(status, elapsed)
}

func (m *mockRecorder) AnalyteEvaluated(stats proficiency.AnalyteStatistics) {
	m.Called(stats)
}

func (m *mockRecorder) ResultClassified(c proficiency.Classification) {
	m.Called(c)
}

func TestEvaluateRecordsMetrics(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("AnalyteEvaluated", mock.Anything).Times(2)
	rec.On("ResultClassified", proficiency.Acceptable).Times(6)
	rec.On("RunFinished", "success", mock.Anything).Once()

	var records []proficiency.Record
	records = append(records, labRecords("Glucosa", "mg/dL", []string{"L1", "L2", "L3"}, []float64{100, 101, 99})...)
	records = append(records, labRecords("Urea", "mg/dL", []string{"L1", "L2", "L3"}, []float64{30, 31, 29})...)

	svc := NewEvaluationService(testConfig(), internal.Discard(), rec)
	_, err := svc.Evaluate(context.Background(), records)
	require.NoError(t, err)
	rec.AssertExpectations(t)

	rejected := &mockRecorder{}
	rejected.On("RunFinished", "rejected", mock.Anything).Once()
	_, err = NewEvaluationService(testConfig(), internal.Discard(), rejected).Evaluate(context.Background(), nil)
	require.Error(t, err)
	rejected.AssertExpectations(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	failing := &mockRecorder{}
	failing.On("RunFinished", "failed", mock.Anything).Once()
	_, err = NewEvaluationService(testConfig(), internal.Discard(), failing).Evaluate(ctx, records)
	require.ErrorIs(t, err, context.Canceled)
	failing.AssertExpectations(t)
}
