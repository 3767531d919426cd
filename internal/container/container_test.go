package container

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ptscore/adapters/excel"
	"ptscore/adapters/report"
	"ptscore/domain/core"
	"ptscore/domain/proficiency"
	"ptscore/internal/config"
	apperrors "ptscore/internal/errors"
	"ptscore/internal/testkit"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{ err error }

func (f failingReader) ReadRecords(ctx context.Context) ([]proficiency.Record, error) {
	return nil, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Code = "EA-007-2025"
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = filepath.Join(t.TempDir(), "ptscore.db")
	cfg.Blob.Backend = "fs"
	cfg.Blob.Dir = filepath.Join(t.TempDir(), "web")
	return cfg
}

func writeRound(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consolidado.csv")
	records := testkit.NewRoundGenerator(testkit.DefaultRoundConfig()).Generate()
	require.NoError(t, testkit.WriteConsolidatedCSV(path, records))
	return path
}

func TestRunRoundPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	c, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.InitWithDatabase(ctx))
	require.NoError(t, c.InitBlobStore(ctx))
	defer c.Shutdown(ctx)

	outDir := t.TempDir()
	outcome, err := c.RunRound(ctx, excel.NewDataReader(writeRound(t), nil), RoundOptions{
		OutputDir: outDir,
		Export:    report.ExportOptions{XLSX: true},
	})
	require.NoError(t, err)

	assert.True(t, outcome.Persisted)
	assert.Equal(t, "informes/EA-007-2025.json", outcome.PublishedKey)
	for _, f := range outcome.Outputs.Files() {
		assert.FileExists(t, f)
	}

	published, err := os.ReadFile(filepath.Join(cfg.Blob.Dir, "informes", "EA-007-2025.json"))
	require.NoError(t, err)
	local, err := os.ReadFile(outcome.Outputs.Document)
	require.NoError(t, err)
	assert.Equal(t, string(local), string(published))

	var doc proficiency.Document
	require.NoError(t, json.Unmarshal(published, &doc))
	assert.Len(t, doc.Analytes, 3)

	stored, err := c.Reports.GetDocument(ctx, "EA-007-2025")
	require.NoError(t, err)
	assert.Equal(t, doc, *stored)

	rows, err := c.Reports.GetAuditRows(ctx, "EA-007-2025")
	require.NoError(t, err)
	assert.Len(t, rows, len(outcome.Report.Results()))

	series, err := testutil.GatherAndCount(c.Registry, "ptscore_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestRunRoundWithoutStorage(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	c, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, c.InitWithDatabase(ctx))
	require.NoError(t, c.InitBlobStore(ctx))
	assert.Nil(t, c.Reports)
	assert.Nil(t, c.Blob)

	outcome, err := c.RunRound(ctx, excel.NewDataReader(writeRound(t), nil), RoundOptions{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, outcome.Persisted)
	assert.Empty(t, outcome.PublishedKey)
	assert.Empty(t, outcome.Outputs.AuditXLSX)
}

func TestRunRoundIsReproducible(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	input := writeRound(t)

	var ids []core.RunID
	for i := 0; i < 2; i++ {
		c, err := New(cfg, nil)
		require.NoError(t, err)
		outcome, err := c.RunRound(ctx, excel.NewDataReader(input, nil), RoundOptions{OutputDir: t.TempDir()})
		require.NoError(t, err)
		ids = append(ids, outcome.Report.RunID)
	}
	assert.Equal(t, ids[0], ids[1])
}

func TestRunRoundPropagatesInputErrors(t *testing.T) {
	c, err := New(config.Default(), nil)
	require.NoError(t, err)

	_, err = c.RunRound(context.Background(), failingReader{err: core.ErrEmptyDataset}, RoundOptions{OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyDataset))
	assert.Equal(t, 2, apperrors.ExitCode(err))
}

func TestInitWithDatabaseRejectsBadDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	cfg.Database.URL = "whatever"
	c, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, c.InitWithDatabase(context.Background()))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestShutdownWithoutDatabase(t *testing.T) {
	c, err := New(config.Default(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.Shutdown(ctx))
}
