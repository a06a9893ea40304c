package cmd

import (
	"bytes"
	"os"

	"github.com/spf13/cobra"

	"kpisync/internal/common"
	"kpisync/internal/config"
	"kpisync/internal/summary"
)

var summaryOutput string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Render the daily KPI summary as HTML",
	Long: `Compute overall and per-segment conversion KPIs from customer_kpis and
print them as an HTML fragment suitable for an e-mail body.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryOutput, "output", "o", "", "Write the HTML to this file instead of stdout")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	source, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	s, err := summary.Compute(ctx, source, cfg.Warehouse.ProjectID, cfg.Warehouse.Dataset)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := summary.RenderHTML(&buf, s); err != nil {
		return err
	}

	if summaryOutput == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	path, err := common.CleanPath(summaryOutput)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), common.FilePermissionNormal)
}
