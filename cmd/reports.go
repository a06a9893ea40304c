package cmd

import (
	"github.com/spf13/cobra"

	"kpisync/internal/ui"
)

var reportsCatalog string

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List the reports in the effective catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg, reportsCatalog)
		if err != nil {
			return err
		}
		ui.RenderCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func init() {
	reportsCmd.Flags().StringVarP(&reportsCatalog, "catalog", "c", "", "SQL catalog file with '-- Sheet Name' headers")
	rootCmd.AddCommand(reportsCmd)
}
