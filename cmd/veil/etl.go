package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/etl"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/spf13/cobra"
)

func newAnonymizeFileCmd() *cobra.Command {
	cfg := etl.DefaultConfig()
	var input, output string

	cmd := &cobra.Command{
		Use:   "anonymize-file",
		Short: "Anonymize a CSV, JSON lines or Parquet dataset",
		Long: `Anonymize the text column of a dataset. Formats follow the file extensions
(.csv, .json/.jsonl, .parquet) and may differ between input and output.
Mappings are not kept, so the output cannot be restored.

Examples:
  veil anonymize-file --input tickets.csv --output tickets.anon.csv
  veil anonymize-file --input logs.jsonl --output logs.parquet --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			log, err := logger.New(logger.Config{
				Level:  appCfg.Logging.Level,
				Format: appCfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			anonymizer, err := privacy.New(appCfg.Privacy, log, nil)
			if err != nil {
				return fmt.Errorf("failed to create anonymizer: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := etl.NewPipeline(anonymizer, cfg, log).ProcessFile(ctx, input, output)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "input dataset")
	cmd.Flags().StringVar(&output, "output", "", "output dataset")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "records per batch")
	cmd.Flags().IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount, "anonymization workers")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
