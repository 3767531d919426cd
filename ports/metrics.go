package ports

import (
	"time"

	"ptscore/domain/proficiency"
)

// EvaluationRecorder receives run-level observations for monitoring.
type EvaluationRecorder interface {
	RunFinished(status string, elapsed time.Duration)
	AnalyteEvaluated(stats proficiency.AnalyteStatistics)
	ResultClassified(c proficiency.Classification)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) RunFinished(string, time.Duration)               {}
func (NopRecorder) AnalyteEvaluated(proficiency.AnalyteStatistics) {}
func (NopRecorder) ResultClassified(proficiency.Classification)    {}
