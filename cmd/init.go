package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpisync/internal/config"
	"kpisync/internal/ui"
	"kpisync/pkg/models"
)

var initForce bool

// runWizard is replaced in tests.
var runWizard = func(cmd *cobra.Command, base *models.Config) (*models.Config, error) {
	return ui.NewConfigWizard(cmd.OutOrStdout()).Run(base)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file interactively",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	base := &models.Config{}
	if config.Exists() {
		if !initForce {
			ui.ShowWarning(out, fmt.Sprintf("Configuration already exists at %s (use --force to replace it)", config.GetConfigFile()))
			return nil
		}
		existing, err := config.Load()
		if err != nil {
			return err
		}
		base = existing
	}

	cfg, err := runWizard(cmd, base)
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	ui.ShowSuccess(out, fmt.Sprintf("Configuration saved to %s", config.GetConfigFile()))
	return nil
}
