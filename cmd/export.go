package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpisync/internal/config"
	"kpisync/internal/report"
	"kpisync/internal/ui"
)

var exportFlags struct {
	dryRun      bool
	check       bool
	catalog     string
	reports     []string
	parallelism int
	preview     int
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run every report and write each result to its sheet",
	Long: `Run the report catalog against the warehouse and replace each report's
sheet in the configured spreadsheet with the query result.

A failing report is recorded and the remaining reports still run. The
command exits non-zero when any report failed or the spreadsheet could not
be opened.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVarP(&exportFlags.dryRun, "dry-run", "d", false, "Run the queries but print results instead of writing sheets")
	exportCmd.Flags().BoolVar(&exportFlags.check, "check", false, "Only check that every placeholder has a value")
	exportCmd.Flags().StringVarP(&exportFlags.catalog, "catalog", "c", "", "SQL catalog file with '-- Sheet Name' headers")
	exportCmd.Flags().StringSliceVarP(&exportFlags.reports, "report", "r", nil, "Run only these reports (repeatable)")
	exportCmd.Flags().IntVarP(&exportFlags.parallelism, "parallelism", "p", 0, "Reports in flight at once (default from config)")
	exportCmd.Flags().IntVar(&exportFlags.preview, "preview-rows", 10, "Rows shown per report with --dry-run")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	logger := newLogger(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg, exportFlags.catalog)
	if err != nil {
		return err
	}
	if len(exportFlags.reports) > 0 {
		if catalog, err = catalog.Select(exportFlags.reports...); err != nil {
			return err
		}
	}

	params := config.Parameters(cfg)
	if exportFlags.check {
		if err := report.ValidateParameters(catalog, params); err != nil {
			return err
		}
		ui.ShowSuccess(out, fmt.Sprintf("%d reports have every parameter they need", catalog.Len()))
		return nil
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

	var sink report.Sink
	var preview *report.MemorySink
	if exportFlags.dryRun {
		preview = report.NewMemorySink()
		sink = preview
	} else {
		if sink, err = openSink(ctx, cfg, logger); err != nil {
			return err
		}
	}

	parallelism := cfg.Runner.Parallelism
	if exportFlags.parallelism > 0 {
		parallelism = exportFlags.parallelism
	}

	runner := &report.Runner{
		Source:      source,
		Sink:        sink,
		Logger:      logger,
		Parallelism: parallelism,
	}
	rep, err := runner.RunAll(ctx, catalog, report.Options{
		Container:  cfg.Sheets.Spreadsheet,
		Parameters: params,
	})
	if err != nil {
		return err
	}

	if preview != nil {
		for _, name := range catalog.Names() {
			if rs, ok := preview.Sheet(cfg.Sheets.Spreadsheet, name); ok {
				ui.RenderResultSet(out, name, rs, exportFlags.preview)
			}
		}
		fmt.Fprintln(out)
	}
	ui.RenderRunReport(out, rep, ui.SupportsColor())

	if rep.HasFailures() {
		return rep.Err()
	}
	return nil
}
