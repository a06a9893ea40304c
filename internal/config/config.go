package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kpisync/internal/common"
	apperrors "kpisync/pkg/errors"
	"kpisync/pkg/models"
)

const (
	DefaultSpreadsheet = "Bank Marketing KPIs"
	DefaultLocation    = "US"
	DefaultDataset     = "bank_marketing_dm"
	DefaultRawDataset  = "bank_marketing_raw"
	DefaultRawTable    = "bank_marketing"
	DefaultAuditTable  = "data_quality_audits"
	DefaultIngestURL   = "https://archive.ics.uci.edu/static/public/222/bank+marketing.zip"

	WarehouseBigQuery  = "bigquery"
	WarehouseSnowflake = "snowflake"
)

func GetConfigPath() string {
	if configPath := os.Getenv("KPISYNC_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kpisync")
}

func GetConfigFile() string {
	if configFile := os.Getenv("KPISYNC_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the default config file. A missing file yields an empty config.
func Load() (*models.Config, error) {
	return LoadFrom(GetConfigFile())
}

// LoadFrom reads the config at path. A missing file yields an empty config.
func LoadFrom(path string) (*models.Config, error) {
	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return &models.Config{}, nil
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

func Save(config *models.Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(configPath, common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigFile(), data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// ApplyEnv overlays the environment variables the export scripts have always
// used. Set variables win over the file.
func ApplyEnv(config *models.Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&config.Warehouse.ProjectID, "GOOGLE_CLOUD_PROJECT")
	set(&config.Warehouse.Location, "BQ_LOCATION")
	set(&config.Sheets.Spreadsheet, "SHEET_NAME")
	set(&config.Sheets.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&config.Ingest.Dataset, "RAW_DATASET")
	set(&config.Ingest.Table, "RAW_TABLE")
	set(&config.Audit.Dataset, "AUDIT_DATASET")
	set(&config.Audit.Table, "AUDIT_TABLE")
}

// Defaults fills every unset field with its default.
func Defaults(config *models.Config) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}

	def(&config.Warehouse.Kind, WarehouseBigQuery)
	def(&config.Warehouse.Location, DefaultLocation)
	def(&config.Warehouse.Dataset, DefaultDataset)
	def(&config.Sheets.Spreadsheet, DefaultSpreadsheet)
	def(&config.Ingest.URL, DefaultIngestURL)
	def(&config.Ingest.Dataset, DefaultRawDataset)
	def(&config.Ingest.Table, DefaultRawTable)
	def(&config.Ingest.Timeout, "60s")
	def(&config.Audit.Dataset, config.Warehouse.Dataset)
	def(&config.Audit.Table, DefaultAuditTable)

	if config.Runner.Parallelism <= 0 {
		config.Runner.Parallelism = 1
	}
}

// Parameters returns the substitution values for report templates. Built-in
// keys come from the warehouse section; explicit parameters override them.
func Parameters(config *models.Config) map[string]string {
	params := map[string]string{
		"project_id":    config.Warehouse.ProjectID,
		"dataset":       config.Warehouse.Dataset,
		"audit_dataset": config.Audit.Dataset,
		"audit_table":   config.Audit.Table,
	}
	for k, v := range params {
		if v == "" {
			delete(params, k)
		}
	}
	for k, v := range config.Parameters {
		params[k] = v
	}
	return params
}

// Validate checks the fields every warehouse command needs.
func Validate(config *models.Config) error {
	switch config.Warehouse.Kind {
	case WarehouseBigQuery:
		if config.Warehouse.ProjectID == "" {
			return apperrors.ConfigError("warehouse project is required (set GOOGLE_CLOUD_PROJECT)", "warehouse.project")
		}
	case WarehouseSnowflake:
		sf := config.Warehouse.Snowflake
		if sf.Account == "" || sf.Username == "" {
			return apperrors.ConfigError("snowflake account and username are required", "warehouse.snowflake")
		}
	default:
		return apperrors.ConfigError(fmt.Sprintf("unknown warehouse kind %q", config.Warehouse.Kind), "warehouse.kind")
	}

	if config.Warehouse.Timeout != "" {
		if _, err := time.ParseDuration(config.Warehouse.Timeout); err != nil {
			return apperrors.ConfigError(fmt.Sprintf("invalid warehouse timeout %q", config.Warehouse.Timeout), "warehouse.timeout")
		}
	}
	return nil
}

// Duration parses a duration field, falling back when empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
