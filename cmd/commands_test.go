package cmd

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpisync/internal/config"
	"kpisync/internal/security"
	apperrors "kpisync/pkg/errors"
	"kpisync/pkg/models"
)

const bigQueryConfig = `
warehouse:
  project: acme
  dataset: dm
`

func TestReportsCommand(t *testing.T) {
	_, _, configPath := setupCommand(t, "")

	output, err := executeCommand(t, "reports", "--config", configPath)
	require.NoError(t, err)

	assert.Contains(t, output, "Segment KPIs")
	assert.Contains(t, output, "Executive Summary")
	assert.Contains(t, output, "project_id, dataset")
}

func TestAuditCommand(t *testing.T) {
	wh, _, configPath := setupCommand(t, bigQueryConfig)

	output, err := executeCommand(t, "audit", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "conversion_rate_range")
	assert.Contains(t, output, "out_of_range=2")
	assert.Contains(t, output, "data quality checks failed")

	inserts := 0
	for i, q := range wh.Queries() {
		if strings.HasPrefix(q, "INSERT INTO `acme.dm.data_quality_audits`") {
			inserts++
			assert.Contains(t, wh.Params(i), "check_name")
		}
	}
	assert.Equal(t, 3, inserts)

	_, err = executeCommand(t, "audit", "--config", configPath, "--strict")
	assert.Equal(t, apperrors.ErrCodeAuditFailed, apperrors.GetErrorCode(err))
}

func TestAuditRequiresBigQuery(t *testing.T) {
	_, _, configPath := setupCommand(t, `
warehouse:
  kind: snowflake
  snowflake:
    account: xy123
    username: etl
`)

	_, err := executeCommand(t, "audit", "--config", configPath)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetErrorCode(err))
}

func TestSummaryCommand(t *testing.T) {
	_, _, configPath := setupCommand(t, bigQueryConfig)

	output, err := executeCommand(t, "summary", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "<h3>Bank Marketing - Daily Summary</h3>")
	assert.Contains(t, output, "<tr><td>high</td><td>0.5000</td><td>5</td></tr>")

	htmlPath := filepath.Join(filepath.Dir(configPath), "summary.html")
	_, err = executeCommand(t, "summary", "--config", configPath, "--output", htmlPath)
	require.NoError(t, err)
	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h4>By segment</h4>")
}

func TestIngestCommand(t *testing.T) {
	wh, _, configPath := setupCommand(t, bigQueryConfig)

	var inner bytes.Buffer
	zw := zip.NewWriter(&inner)
	w, err := zw.Create("bank-full.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("\"age\";\"job\"\n30;\"admin.\"\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var outer bytes.Buffer
	zw = zip.NewWriter(&outer)
	w, err = zw.Create("bank.zip")
	require.NoError(t, err)
	_, err = w.Write(inner.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(outer.Bytes())
	}))
	defer server.Close()

	output, err := executeCommand(t, "ingest", "--config", configPath, "--url", server.URL)
	require.NoError(t, err)

	loaded, ok := wh.Loaded("bank_marketing_raw", "bank_marketing")
	require.True(t, ok)
	assert.Equal(t, "age,job\n30,admin.\n", loaded)
	assert.Contains(t, output, "Loaded 1 rows into acme.bank_marketing_raw.bank_marketing")
}

func TestInitCommand(t *testing.T) {
	_, _, configPath := setupCommand(t, "")

	orig := runWizard
	defer func() { runWizard = orig }()
	runWizard = func(cmd *cobra.Command, base *models.Config) (*models.Config, error) {
		cfg := *base
		cfg.Warehouse.ProjectID = "acme"
		cfg.Sheets.Spreadsheet = "KPIs"
		return &cfg, nil
	}

	output, err := executeCommand(t, "init", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration saved to "+configPath)

	saved, err := config.LoadFrom(configPath)
	require.NoError(t, err)
	assert.Equal(t, "acme", saved.Warehouse.ProjectID)

	output, err = executeCommand(t, "init", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration already exists")

	runWizard = func(cmd *cobra.Command, base *models.Config) (*models.Config, error) {
		assert.Equal(t, "acme", base.Warehouse.ProjectID)
		return base, nil
	}
	_, err = executeCommand(t, "init", "--config", configPath, "--force")
	require.NoError(t, err)
}

func TestCredentialsCommands(t *testing.T) {
	_, _, configPath := setupCommand(t, "")
	keyPath := filepath.Join(filepath.Dir(configPath), "sa.json")
	key := `{"type":"service_account","client_email":"kpisync@acme.iam.gserviceaccount.com"}`
	require.NoError(t, os.WriteFile(keyPath, []byte(key), 0600))

	output, err := executeCommand(t, "credentials", "set", keyPath)
	require.NoError(t, err)
	assert.Contains(t, output, "kpisync@acme.iam.gserviceaccount.com")

	output, err = executeCommand(t, "credentials", "list")
	require.NoError(t, err)
	assert.Equal(t, security.DefaultEntry+"\n", output)

	creds, err := loadServiceAccount(&models.Config{})
	require.NoError(t, err)
	assert.JSONEq(t, key, string(creds))

	_, err = executeCommand(t, "credentials", "delete")
	require.NoError(t, err)

	creds, err = loadServiceAccount(&models.Config{})
	require.NoError(t, err)
	assert.Nil(t, creds)

	notKey := filepath.Join(filepath.Dir(configPath), "other.json")
	require.NoError(t, os.WriteFile(notKey, []byte(`{"type":"authorized_user"}`), 0600))
	_, err = executeCommand(t, "credentials", "set", notKey)
	assert.Error(t, err)
}

func TestLoadServiceAccountFromFile(t *testing.T) {
	_, _, configPath := setupCommand(t, "")
	keyPath := filepath.Join(filepath.Dir(configPath), "sa.json")
	require.NoError(t, os.WriteFile(keyPath, []byte(`{"type":"service_account"}`), 0600))

	creds, err := loadServiceAccount(&models.Config{Sheets: models.Sheets{CredentialsFile: keyPath}})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, string(creds))

	_, err = loadServiceAccount(&models.Config{Sheets: models.Sheets{CredentialsFile: keyPath + ".missing"}})
	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetErrorCode(err))
}

func TestLoadCatalogPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.sql")
	require.NoError(t, os.WriteFile(path, []byte("-- From File\nSELECT 1\n"), 0600))

	cfg := &models.Config{Reports: []models.Report{{Name: "Inline", Query: "SELECT 2"}}}

	catalog, err := loadCatalog(cfg, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"From File"}, catalog.Names())

	catalog, err = loadCatalog(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Inline"}, catalog.Names())

	cfg.CatalogFile = path
	catalog, err = loadCatalog(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"From File"}, catalog.Names())

	catalog, err = loadCatalog(&models.Config{}, "")
	require.NoError(t, err)
	assert.Equal(t, 9, catalog.Len())
}
