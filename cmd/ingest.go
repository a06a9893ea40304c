package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpisync/internal/config"
	"kpisync/internal/ingest"
	"kpisync/internal/ui"
	apperrors "kpisync/pkg/errors"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the bank marketing dataset into the raw BigQuery table",
	Long: `Download the UCI bank marketing archive, extract its CSV, normalize the
column names and replace the raw table with its rows.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "Archive URL (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Warehouse.Kind != config.WarehouseBigQuery {
		return apperrors.ConfigError("ingest loads into BigQuery and needs warehouse.kind bigquery", "warehouse.kind")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	url := cfg.Ingest.URL
	if ingestURL != "" {
		url = ingestURL
	}

	ctx := cmd.Context()
	bq, err := openBigQuery(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bq.Close()

	pipeline := &ingest.Pipeline{
		Downloader: ingest.NewDownloader(config.Duration(cfg.Ingest.Timeout, ingest.DefaultTimeout), nil, logger),
		Loader:     bq,
		Logger:     logger,
	}
	res, err := pipeline.Run(ctx, url, cfg.Ingest.Dataset, cfg.Ingest.Table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ui.PrintKeyValue(out, "Source", res.Source)
	ui.PrintKeyValue(out, "Rows parsed", fmt.Sprint(res.Parsed))
	ui.ShowSuccess(out, fmt.Sprintf("Loaded %d rows into %s.%s.%s",
		res.Loaded, cfg.Warehouse.ProjectID, res.Dataset, res.Table))
	return nil
}
