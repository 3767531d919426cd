package app

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"ptscore/adapters/stats/robust"
	"ptscore/adapters/stats/scoring"
	"ptscore/domain/core"
	"ptscore/domain/proficiency"
	"ptscore/internal"
	"ptscore/internal/config"
	"ptscore/ports"

	"golang.org/x/sync/errgroup"
)

// unknownUnit is reported when no record of an analyte carries a unit.
const unknownUnit = "?"

// EvaluationConfig is the explicit configuration of one pipeline instance.
type EvaluationConfig struct {
	Code          string
	Methodology   string
	MaxIterations int
	Tolerance     float64
	Workers       int
	Clock         func() time.Time
}

// EvaluationConfigFrom builds the pipeline configuration from application config.
func EvaluationConfigFrom(cfg *config.Config) EvaluationConfig {
	return EvaluationConfig{
		Code:          cfg.Run.Code,
		Methodology:   cfg.Run.Methodology,
		MaxIterations: cfg.Robust.MaxIterations,
		Tolerance:     cfg.Robust.Tolerance,
		Workers:       cfg.Pipeline.Workers,
		Clock:         time.Now,
	}
}

// EvaluationService groups records by analyte, estimates consensus values and
// scores every laboratory result.
type EvaluationService struct {
	cfg        EvaluationConfig
	estimator  *robust.Estimator
	thresholds scoring.Thresholds
	logger     *internal.Logger
	recorder   ports.EvaluationRecorder
}

// NewEvaluationService creates an evaluation pipeline. A nil recorder disables metrics.
func NewEvaluationService(cfg EvaluationConfig, logger *internal.Logger, recorder ports.EvaluationRecorder) *EvaluationService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Methodology == "" {
		cfg.Methodology = config.DefaultMethodology
	}
	if logger == nil {
		logger = internal.Discard()
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &EvaluationService{
		cfg:        cfg,
		estimator:  &robust.Estimator{MaxIterations: cfg.MaxIterations, Tolerance: cfg.Tolerance},
		thresholds: scoring.DefaultThresholds(),
		logger:     logger,
		recorder:   recorder,
	}
}

// analyteGroup is the usable and excluded records of one analyte.
type analyteGroup struct {
	name     string
	usable   []proficiency.Record
	excluded int
	unit     string
}

// Evaluate runs the full pipeline over an immutable record snapshot.
// Hard failures (empty input, missing fields, analytes without any result) abort
// the run; missing results and non-convergence are reported in Diagnostics.
func (s *EvaluationService) Evaluate(ctx context.Context, records []proficiency.Record) (*proficiency.Report, error) {
	start := time.Now()
	report, err := s.evaluate(ctx, records)
	if err != nil {
		status := "failed"
		if core.IsInputError(err) {
			status = "rejected"
		}
		s.recorder.RunFinished(status, time.Since(start))
		s.logger.Error("Evaluation of round %s failed: %v", s.cfg.Code, err)
		return nil, err
	}
	s.recorder.RunFinished("success", time.Since(start))
	return report, nil
}

func (s *EvaluationService) evaluate(ctx context.Context, records []proficiency.Record) (*proficiency.Report, error) {
	if err := validateRecords(records); err != nil {
		return nil, err
	}

	groups, err := groupByAnalyte(records)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Evaluating round %s: %d records across %d analytes", s.cfg.Code, len(records), len(groups))

	// Each group writes only its own slot, so analyte order survives any scheduling.
	evaluations := make([]proficiency.AnalyteEvaluation, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev, err := s.evaluateGroup(grp)
			if err != nil {
				return fmt.Errorf("analyte %q: %w", grp.name, err)
			}
			evaluations[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &proficiency.Report{
		Code:        s.cfg.Code,
		Date:        s.cfg.Clock(),
		Methodology: s.cfg.Methodology,
		Analytes:    evaluations,
		Diagnostics: proficiency.Diagnostics{ExcludedByAnalyte: map[string]int{}},
	}

	for _, ev := range evaluations {
		st := ev.Statistics
		s.recorder.AnalyteEvaluated(st)
		if st.Excluded > 0 {
			report.Diagnostics.ExcludedRecords += st.Excluded
			report.Diagnostics.ExcludedByAnalyte[st.Analyte] = st.Excluded
			s.logger.Warn("Analyte %s: %d records without result excluded", st.Analyte, st.Excluded)
		}
		if !st.Converged {
			report.Diagnostics.NonConverged = append(report.Diagnostics.NonConverged, st.Analyte)
			s.logger.Warn("Analyte %s: robust estimate did not converge after %d iterations, using last iterate", st.Analyte, st.Iterations)
		}
		s.logger.Debug("Analyte %s: n=%d X*=%.4f s*=%.4f mean=%.4f sd=%.4f method=%s iterations=%d",
			st.Analyte, st.N, st.AssignedValue, st.RobustSD, st.ClassicalMean, st.ClassicalSD, st.Method, st.Iterations)

		for _, r := range ev.Results {
			report.Summary.Add(r.Classification)
			s.recorder.ResultClassified(r.Classification)
		}
	}

	report.Agreement = CompareClassifications(report.Results())
	report.Fingerprint = s.fingerprint(report)
	report.RunID = core.DeriveRunID(report.Code, report.Fingerprint)

	s.logger.Info("Round %s evaluated: %d scored (A=%d C=%d I=%d NR=%d), fingerprint %s",
		report.Code, report.Summary.Total, report.Summary.Acceptable, report.Summary.Questionable,
		report.Summary.Unacceptable, report.Summary.NotReported, report.Fingerprint.Short())
	return report, nil
}

// validateRecords enforces the required fields of every record.
func validateRecords(records []proficiency.Record) error {
	if len(records) == 0 {
		return core.ErrEmptyDataset
	}
	for i, r := range records {
		if strings.TrimSpace(r.LabID) == "" {
			return core.NewMissingFieldError("lab_id", i)
		}
		if strings.TrimSpace(r.Analyte) == "" {
			return core.NewMissingFieldError("analyte", i)
		}
		if r.Result != nil && math.IsInf(*r.Result, 0) {
			return core.NewInvalidValueError("result", i, strconv.FormatFloat(*r.Result, 'g', -1, 64))
		}
	}
	return nil
}

// groupByAnalyte partitions records by trimmed analyte name in lexicographic
// order and drops records without a result. An analyte left with no result fails
// the run.
func groupByAnalyte(records []proficiency.Record) ([]analyteGroup, error) {
	index := make(map[string]*analyteGroup)
	var names []string
	for _, r := range records {
		name := strings.TrimSpace(r.Analyte)
		grp, ok := index[name]
		if !ok {
			grp = &analyteGroup{name: name}
			index[name] = grp
			names = append(names, name)
		}
		if !r.HasResult() {
			grp.excluded++
			continue
		}
		r.Analyte = name
		r.LabID = strings.TrimSpace(r.LabID)
		grp.usable = append(grp.usable, r)
	}
	sort.Strings(names)

	groups := make([]analyteGroup, 0, len(names))
	for _, name := range names {
		grp := index[name]
		if len(grp.usable) == 0 {
			return nil, core.NewNoUsableObservationsError(name, grp.excluded)
		}
		grp.unit = groupUnit(grp.usable)
		groups = append(groups, *grp)
	}
	return groups, nil
}

// groupUnit picks the unit of the analyte. Units are normalised upstream, so the
// smallest non-empty unit is taken to stay independent of record order.
func groupUnit(records []proficiency.Record) string {
	unit := ""
	for _, r := range records {
		u := strings.TrimSpace(r.Unit)
		if u != "" && (unit == "" || u < unit) {
			unit = u
		}
	}
	if unit == "" {
		return unknownUnit
	}
	return unit
}

func (s *EvaluationService) evaluateGroup(grp analyteGroup) (proficiency.AnalyteEvaluation, error) {
	values := make([]float64, len(grp.usable))
	for i, r := range grp.usable {
		values[i] = *r.Result
	}
	sort.Float64s(values)

	est, err := s.estimator.Estimate(values)
	if err != nil {
		return proficiency.AnalyteEvaluation{}, err
	}
	mean, sd := robust.ClassicalMeanSD(values)

	stats := proficiency.AnalyteStatistics{
		Analyte:       grp.name,
		Unit:          grp.unit,
		N:             len(values),
		Excluded:      grp.excluded,
		ClassicalMean: mean,
		ClassicalSD:   sd,
		AssignedValue: est.AssignedValue,
		RobustSD:      est.SD,
		CV:            coefficientOfVariation(est.AssignedValue, est.SD),
		Converged:     est.Converged,
		Iterations:    est.Iterations,
		Method:        string(est.Method),
	}

	results := make([]proficiency.EvaluationResult, 0, len(grp.usable))
	for _, r := range grp.usable {
		z, class := s.thresholds.Score(r.Result, est.AssignedValue, est.SD)
		results = append(results, proficiency.EvaluationResult{
			Record:         r,
			AssignedValue:  est.AssignedValue,
			RobustSD:       est.SD,
			ZScore:         z,
			Classification: class,
		})
	}
	SortResults(results)

	return proficiency.AnalyteEvaluation{Statistics: stats, Results: results}, nil
}

// coefficientOfVariation returns σ*/X*·100, or 0 when X* is 0.
func coefficientOfVariation(assigned, sd float64) float64 {
	if assigned == 0 {
		return 0
	}
	return sd / assigned * 100
}

// SortResults orders results ascending by z-score. Results without a z-score go
// last; ties break on lab, sample, result and original classification so the
// order does not depend on input order.
func SortResults(results []proficiency.EvaluationResult) {
	slices.SortStableFunc(results, func(a, b proficiency.EvaluationResult) int {
		switch {
		case a.ZScore != nil && b.ZScore == nil:
			return -1
		case a.ZScore == nil && b.ZScore != nil:
			return 1
		case a.ZScore != nil && b.ZScore != nil:
			if c := cmp.Compare(*a.ZScore, *b.ZScore); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(a.LabID, b.LabID); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SampleID, b.SampleID); c != 0 {
			return c
		}
		if c := cmp.Compare(*a.Result, *b.Result); c != 0 {
			return c
		}
		return cmp.Compare(originalTag(a.OriginalClassification), originalTag(b.OriginalClassification))
	})
}

func originalTag(c *proficiency.Classification) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

// fingerprint hashes everything the report states except run id and date.
func (s *EvaluationService) fingerprint(r *proficiency.Report) core.Hash {
	params := core.ComputeParamsHash(map[string]interface{}{
		"code":           r.Code,
		"methodology":    r.Methodology,
		"max_iterations": s.estimator.MaxIterations,
		"tolerance":      formatFloat(s.estimator.Tolerance),
	})

	lines := []string{params.String()}
	for _, ev := range r.Analytes {
		st := ev.Statistics
		lines = append(lines, strings.Join([]string{
			"analyte", st.Analyte, st.Unit, strconv.Itoa(st.N), strconv.Itoa(st.Excluded),
			formatFloat(st.ClassicalMean), formatFloat(st.ClassicalSD),
			formatFloat(st.AssignedValue), formatFloat(st.RobustSD),
			strconv.FormatBool(st.Converged), strconv.Itoa(st.Iterations), st.Method,
		}, "|"))
		for _, res := range ev.Results {
			z := "nil"
			if res.ZScore != nil {
				z = formatFloat(*res.ZScore)
			}
			lines = append(lines, strings.Join([]string{
				"result", res.LabID, res.SampleID, formatFloat(*res.Result), res.Unit, z,
				string(res.Classification), originalTag(res.OriginalClassification),
			}, "|"))
		}
	}
	return core.HashLines(lines)
}

// formatFloat prints the shortest representation that round-trips exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
