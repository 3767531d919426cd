package ports

import (
	"context"

	"ptscore/domain/proficiency"
)

// RecordReader loads an already-normalised record snapshot from a tabular source.
// Header detection and unit parsing of raw spreadsheets happen upstream.
type RecordReader interface {
	ReadRecords(ctx context.Context) ([]proficiency.Record, error)
}
