package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"ptscore/adapters/excel"
	"ptscore/adapters/report"
	"ptscore/internal"
	"ptscore/internal/config"
	"ptscore/internal/container"
	"ptscore/internal/errors"
	"ptscore/internal/metrics"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand and override the loaded configuration.
type globalFlags struct {
	configFile string
	input      string
	code       string
	workers    int
	logLevel   string
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "ptscore",
		Short:         "Robust z-score evaluation of proficiency testing rounds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Optional YAML configuration file")
	pf.StringVarP(&flags.input, "input", "i", "", "Consolidated results file (.csv or .xlsx)")
	pf.StringVar(&flags.code, "code", "", "Round code, e.g. EA-001-2025")
	pf.IntVar(&flags.workers, "workers", 0, "Analytes evaluated in parallel")
	pf.StringVar(&flags.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE")

	rootCmd.AddCommand(
		newEvaluateCmd(flags),
		newStatsCmd(flags),
	)
	return rootCmd
}

func newEvaluateCmd(flags *globalFlags) *cobra.Command {
	var outputDir string
	var metricsFile string
	var opts report.ExportOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a round and write the audit table, summary and document",
		Long: `Evaluate every analyte of a consolidated round with Algorithm A/S, score each
laboratory and write:

  <output>/ensayos_con_zscore.csv      audit table (and .xlsx with --xlsx)
  <output>/reporte_estadistico.txt     plain-text summary
  <output>/informes/<code>.json        structured document (and .yaml with --yaml)

When a database URL is configured the report is stored; when a blob backend is
configured the document is published under informes/<code>.json. With
--metrics-file the run counters are written for a node exporter textfile collector.

Example: ptscore evaluate -i data/ensayos_aptitud_consolidado.csv --code EA-001-2025 --xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				cfg.Paths.OutputDir = outputDir
			}
			return runEvaluate(cmd.Context(), cmd.OutOrStdout(), cfg, logger, evaluateOptions{
				Export:      opts,
				MetricsFile: metricsFile,
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().BoolVar(&opts.XLSX, "xlsx", false, "Also write the audit table as XLSX")
	cmd.Flags().BoolVar(&opts.YAML, "yaml", false, "Also write the structured document as YAML")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Evaluate a round and print the statistical summary without writing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runStats(cmd.Context(), cmd.OutOrStdout(), cfg, logger)
		},
	}
}

// loadConfig resolves configuration (defaults, file, env) and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, nil, err
	}
	if flags.input != "" {
		cfg.Paths.Input = flags.input
	}
	if flags.code != "" {
		cfg.Run.Code = flags.code
	}
	if flags.workers != 0 {
		cfg.Pipeline.Workers = flags.workers
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewLoggerTo(internal.ParseLogLevel(cfg.LogLevel), os.Stderr), nil
}

// evaluateOptions are the evaluate flags that do not override configuration.
type evaluateOptions struct {
	Export      report.ExportOptions
	MetricsFile string
}

func runEvaluate(ctx context.Context, out io.Writer, cfg *config.Config, logger *internal.Logger, opts evaluateOptions) error {
	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Shutdown(ctx)

	if err := c.InitWithDatabase(ctx); err != nil {
		return err
	}
	if err := c.InitBlobStore(ctx); err != nil {
		return err
	}

	outcome, err := c.RunRound(ctx, excel.NewDataReader(cfg.Paths.Input, logger), container.RoundOptions{
		OutputDir: cfg.Paths.OutputDir,
		Export:    opts.Export,
	})
	if err != nil {
		return err
	}
	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile, c.Registry); err != nil {
			return err
		}
	}

	rep := outcome.Report
	fmt.Fprintf(out, "Ronda %s  run %s\n", rep.Code, rep.RunID)
	fmt.Fprintf(out, "Analitos: %d  Resultados: %d  (A=%d C=%d I=%d NR=%d)\n",
		len(rep.Analytes), rep.Summary.Total,
		rep.Summary.Acceptable, rep.Summary.Questionable, rep.Summary.Unacceptable, rep.Summary.NotReported)
	for _, f := range outcome.Outputs.Files() {
		fmt.Fprintf(out, "  %s\n", f)
	}
	if outcome.Persisted {
		fmt.Fprintln(out, "Informe guardado en la base de datos")
	}
	if outcome.PublishedKey != "" {
		fmt.Fprintf(out, "Publicado: %s\n", outcome.PublishedKey)
	}
	if opts.MetricsFile != "" {
		fmt.Fprintf(out, "Métricas: %s\n", opts.MetricsFile)
	}
	return nil
}

func runStats(ctx context.Context, out io.Writer, cfg *config.Config, logger *internal.Logger) error {
	c, err := container.New(cfg, logger)
	if err != nil {
		return err
	}

	records, err := excel.NewDataReader(cfg.Paths.Input, logger).ReadRecords(ctx)
	if err != nil {
		return err
	}
	rep, err := c.Evaluation.Evaluate(ctx, records)
	if err != nil {
		return err
	}
	return report.WriteSummary(out, rep)
}
