package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"macrobench/adapters/excel"
	"macrobench/adapters/llm"
	"macrobench/adapters/tickdata"
	"macrobench/app"
	"macrobench/domain/backtest"
	"macrobench/internal/config"
	"macrobench/internal/logging"
)

var (
	specPath    string
	ticksPath   string
	exportPath  string
	resultsPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one backtest from a YAML run spec",
	RunE:  runBacktest,
}

func init() {
	runCmd.Flags().StringVar(&specPath, "spec", "", "path to the run spec YAML (required)")
	runCmd.Flags().StringVar(&ticksPath, "ticks", "", "path to the tick data JSON (overrides ticks_file in the spec)")
	runCmd.Flags().StringVar(&exportPath, "export", "", "write an xlsx benchmark workbook to this path")
	runCmd.Flags().StringVar(&resultsPath, "results", "", "write the full results JSON to this path")
	_ = runCmd.MarkFlagRequired("spec")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	spec, err := config.LoadRunSpec(specPath)
	if err != nil {
		return err
	}
	runCfg, err := spec.RunConfig()
	if err != nil {
		return err
	}

	path := ticksPath
	if path == "" {
		path = spec.TicksFile
	}
	if path == "" {
		return fmt.Errorf("no tick data: pass --ticks or set ticks_file in the spec")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticks, err := tickdata.NewFileProvider(path).Ticks(ctx)
	if err != nil {
		return err
	}

	registry := llm.NewRegistry(cfg.LLM, logger)
	service := app.NewBacktestService(registry, logger)

	outcome, runErr := service.Run(ctx, runCfg, ticks, cfg.LLM.Credentials)
	if outcome == nil {
		return runErr
	}
	if runErr != nil {
		// Interrupted runs still carry every committed tick; report what we
		// have and surface the interruption afterwards.
		logger.Warn().Err(runErr).Msg("run interrupted, reporting partial results")
	}

	fmt.Fprintln(cmd.OutOrStdout(), backtest.MarkdownReport("local", outcome.Results, len(ticks)))

	if exportPath != "" {
		if err := writeExport(exportPath, outcome.Results); err != nil {
			return err
		}
		logger.Info().Str("path", exportPath).Msg("wrote xlsx export")
	}
	if resultsPath != "" {
		if err := writeResults(resultsPath, outcome.Results); err != nil {
			return err
		}
		logger.Info().Str("path", resultsPath).Msg("wrote results JSON")
	}
	return runErr
}

func writeExport(path string, results backtest.BacktestResults) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return excel.Export(f, results)
}

func writeResults(path string, results backtest.BacktestResults) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
