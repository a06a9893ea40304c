package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kpisync/internal/config"
	"kpisync/internal/observability"
	"kpisync/internal/ui"
	"kpisync/pkg/models"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "kpisync",
		Short: "Export warehouse KPI reports to Google Sheets",
		Long: `kpisync runs a catalog of SQL reports against the warehouse and writes
each result to its own sheet of a Google Sheets spreadsheet.

It also loads the bank marketing dataset, audits the KPI table and renders
a daily KPI summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ~/.kpisync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.GetConfigPath())
	}

	viper.SetEnvPrefix("KPISYNC")
	viper.AutomaticEnv()

	// A missing config file is fine: environment variables and defaults apply
	_ = viper.ReadInConfig()
}

// configFile is the file the current invocation reads, which may not exist.
func configFile() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.GetConfigFile()
}

// loadConfig reads the config file, overlays the environment and fills defaults.
func loadConfig() (*models.Config, error) {
	cfg, err := config.LoadFrom(configFile())
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.Getenv)
	config.Defaults(cfg)
	return cfg, nil
}

func newLogger(cmd *cobra.Command) *observability.Logger {
	level := observability.LogLevelFromString(viper.GetString("log_level"))
	if viper.GetBool("verbose") {
		level = observability.DebugLevel
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:   level,
		Output:  cmd.ErrOrStderr(),
		Service: "kpisync",
		Version: Version,
	})
}

// resolvePath expands a relative path against the directory of the config file.
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) || path[0] == '~' {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(filepath.Dir(configFile()), path)
}
