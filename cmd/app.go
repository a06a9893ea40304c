package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"kpisync/internal/bigquery"
	"kpisync/internal/common"
	"kpisync/internal/config"
	"kpisync/internal/observability"
	"kpisync/internal/report"
	"kpisync/internal/security"
	"kpisync/internal/sheets"
	"kpisync/internal/snowflake"
	apperrors "kpisync/pkg/errors"
	"kpisync/pkg/models"
)

// warehouse is a report data source holding a connection.
type warehouse interface {
	report.DataSource
	Close() error
}

// Constructors are variables so command tests can substitute fakes.
var (
	openWarehouse = connectWarehouse
	openBigQuery  = connectBigQuery
	openSink      = connectSheets
	openKeyring   = security.NewCredentialStore
)

func connectWarehouse(ctx context.Context, cfg *models.Config, logger *observability.Logger) (warehouse, error) {
	if cfg.Warehouse.Kind == config.WarehouseSnowflake {
		sf := cfg.Warehouse.Snowflake
		svc := snowflake.NewService(snowflake.Config{
			Account:   sf.Account,
			Username:  sf.Username,
			Password:  sf.Password,
			Database:  sf.Database,
			Schema:    sf.Schema,
			Warehouse: sf.Warehouse,
			Role:      sf.Role,
			Timeout:   config.Duration(cfg.Warehouse.Timeout, 0),
		})
		if err := svc.Connect(ctx); err != nil {
			return nil, err
		}
		logger.WithField("account", sf.Account).Debug("connected to snowflake")
		return svc, nil
	}
	return openBigQuery(ctx, cfg, logger)
}

// bigQueryWarehouse adds the parameterized statements and load jobs that
// ingest and audit need.
type bigQueryWarehouse interface {
	warehouse
	Query(ctx context.Context, query string, params map[string]interface{}) (*report.ResultSet, error)
	LoadCSV(ctx context.Context, dataset, table string, r io.Reader) (int64, error)
}

func connectBigQuery(ctx context.Context, cfg *models.Config, logger *observability.Logger) (bigQueryWarehouse, error) {
	creds, err := loadServiceAccount(cfg)
	if err != nil {
		return nil, err
	}

	svc := bigquery.NewService(bigquery.Config{
		ProjectID:       cfg.Warehouse.ProjectID,
		Location:        cfg.Warehouse.Location,
		CredentialsJSON: creds,
		Timeout:         config.Duration(cfg.Warehouse.Timeout, 0),
	})
	if err := svc.Connect(ctx); err != nil {
		return nil, err
	}
	logger.WithField("project", cfg.Warehouse.ProjectID).Debug("connected to bigquery")
	return svc, nil
}

func connectSheets(ctx context.Context, cfg *models.Config, logger *observability.Logger) (report.Sink, error) {
	creds, err := loadServiceAccount(cfg)
	if err != nil {
		return nil, err
	}

	api, err := sheets.NewGoogleAPI(ctx, creds)
	if err != nil {
		return nil, err
	}
	return sheets.NewSink(api, sheets.Options{
		ShareWithAnyone: cfg.Sheets.ShareWithAnyone,
		Annotate:        cfg.Sheets.Annotate,
	}, logger), nil
}

// loadServiceAccount returns the key to authenticate with: the configured
// credentials file, else the keyring entry. Nil means application default
// credentials.
func loadServiceAccount(cfg *models.Config) ([]byte, error) {
	if cfg.Sheets.CredentialsFile != "" {
		path, err := common.CleanPath(resolvePath(cfg.Sheets.CredentialsFile))
		if err != nil {
			return nil, apperrors.ConfigError(err.Error(), "sheets.credentials_file")
		}
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the user's own config
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeFileNotFound, "failed to read credentials file").
				WithContext("path", path)
		}
		return data, nil
	}

	entry := cfg.Sheets.KeyringEntry
	if entry == "" {
		entry = security.DefaultEntry
	}
	store, err := openKeyring()
	if err != nil {
		// no usable keyring, fall back to application default credentials
		return nil, nil
	}
	key, err := store.Get(entry)
	if errors.Is(err, security.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring entry %q: %w", entry, err)
	}
	return []byte(key), nil
}

// loadCatalog picks the catalog: an explicit file, then the config's catalog
// file, then its inline reports, then the built-in catalog.
func loadCatalog(cfg *models.Config, path string) (*report.Catalog, error) {
	if path == "" && cfg.CatalogFile != "" {
		path = resolvePath(cfg.CatalogFile)
	}
	if path != "" {
		return report.ParseCatalogFile(path)
	}
	if len(cfg.Reports) > 0 {
		return report.FromConfig(cfg.Reports)
	}
	return report.DefaultCatalog(), nil
}
