package container

import (
	"bytes"
	"context"

	"ptscore/adapters/report"
	"ptscore/domain/proficiency"
	"ptscore/internal/errors"
	"ptscore/ports"
)

// RoundOptions controls what a round run produces besides the evaluation itself.
type RoundOptions struct {
	OutputDir string
	Export    report.ExportOptions
}

// RoundOutcome describes everything a round run wrote.
type RoundOutcome struct {
	Report    *proficiency.Report
	Outputs   report.Outputs
	Persisted bool
	// PublishedKey is the blob key of the document, empty when not published.
	PublishedKey string
}

// RunRound reads, evaluates and exports a round, then persists and publishes
// it when a store or blob backend is attached. Export happens before any
// remote write so local artefacts exist even if the store is unreachable.
func (c *Container) RunRound(ctx context.Context, reader ports.RecordReader, opts RoundOptions) (*RoundOutcome, error) {
	records, err := reader.ReadRecords(ctx)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("read %d records", len(records))

	rep, err := c.Evaluation.Evaluate(ctx, records)
	if err != nil {
		return nil, err
	}

	outputs, err := report.NewExporter(opts.OutputDir, opts.Export).Export(rep)
	if err != nil {
		return nil, errors.StorageError("failed to export report", err)
	}
	for _, f := range outputs.Files() {
		c.Logger.Info("wrote %s", f)
	}

	outcome := &RoundOutcome{Report: rep, Outputs: outputs}
	doc := report.BuildDocument(rep)

	if c.Reports != nil {
		stored := &ports.StoredReport{
			RunID:       rep.RunID,
			Fingerprint: rep.Fingerprint,
			CreatedAt:   rep.Date,
			Document:    doc,
			Rows:        report.AuditRows(rep),
		}
		if err := c.Reports.Save(ctx, stored); err != nil {
			return outcome, err
		}
		outcome.Persisted = true
		c.Logger.Info("stored report %s (run %s)", rep.Code, rep.RunID)
	}

	if c.Blob != nil {
		var buf bytes.Buffer
		if err := report.WriteJSON(&buf, doc); err != nil {
			return outcome, errors.Wrap(err, "failed to encode document")
		}
		key := report.DocumentKey(rep.Code)
		n, err := c.Blob.Put(ctx, key, "application/json", &buf)
		if err != nil {
			return outcome, errors.StorageError("failed to publish "+key, err)
		}
		outcome.PublishedKey = key
		c.Logger.Info("published %s (%d bytes)", key, n)
	}

	return outcome, nil
}
