package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpisync/internal/audit"
	"kpisync/internal/config"
	"kpisync/internal/ui"
	apperrors "kpisync/pkg/errors"
)

var auditStrict bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run data quality checks on customer_kpis and record the results",
	Long: `Run the data quality checks against the customer_kpis table and append
one row per check to the audit table, creating it when missing.

With --strict the command fails when any check is FAIL.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false, "Exit non-zero when any check fails")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := newLogger(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Warehouse.Kind != config.WarehouseBigQuery {
		return apperrors.ConfigError("audit records results with BigQuery query parameters and needs warehouse.kind bigquery", "warehouse.kind")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	bq, err := openBigQuery(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bq.Close()

	auditor := audit.NewAuditor(bq, audit.Config{
		ProjectID:    cfg.Warehouse.ProjectID,
		Dataset:      cfg.Warehouse.Dataset,
		AuditDataset: cfg.Audit.Dataset,
		AuditTable:   cfg.Audit.Table,
	}, logger)

	results, err := auditor.Run(ctx)
	if err != nil {
		return err
	}
	ui.RenderAuditResults(out, results, ui.SupportsColor())

	if audit.Failed(results) {
		msg := "data quality checks failed"
		if auditStrict {
			return apperrors.New(apperrors.ErrCodeAuditFailed, msg)
		}
		ui.ShowWarning(out, msg)
		return nil
	}
	ui.ShowSuccess(out, fmt.Sprintf("%d checks passed", len(results)))
	return nil
}
