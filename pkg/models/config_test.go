package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
warehouse:
  kind: bigquery
  project: acme-analytics
  location: EU
  dataset: bank_marketing_dm
sheets:
  spreadsheet: Bank Marketing KPIs
  credentials_file: /secrets/sa.json
  annotate: true
runner:
  parallelism: 4
parameters:
  min_rate: "0.25"
reports:
  - name: Totals
    query: SELECT SUM(n) AS total FROM t
  - name: By Segment
    query: |
      SELECT customer_segment, COUNT(*) AS n
      FROM ` + "`{project_id}.{dataset}.customer_kpis`" + `
      GROUP BY customer_segment
`

func TestConfigUnmarshal(t *testing.T) {
	var config Config
	require.NoError(t, yaml.Unmarshal([]byte(sampleConfig), &config))

	assert.Equal(t, "bigquery", config.Warehouse.Kind)
	assert.Equal(t, "acme-analytics", config.Warehouse.ProjectID)
	assert.Equal(t, "EU", config.Warehouse.Location)
	assert.Equal(t, "Bank Marketing KPIs", config.Sheets.Spreadsheet)
	assert.True(t, config.Sheets.Annotate)
	assert.Equal(t, 4, config.Runner.Parallelism)
	assert.Equal(t, "0.25", config.Parameters["min_rate"])

	// Report order is the order of the YAML list
	require.Len(t, config.Reports, 2)
	assert.Equal(t, "Totals", config.Reports[0].Name)
	assert.Equal(t, "By Segment", config.Reports[1].Name)
	assert.Contains(t, config.Reports[1].Query, "{project_id}")
}

func TestEmptyConfig(t *testing.T) {
	config := Config{}

	data, err := yaml.Marshal(&config)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "reports:")
	assert.NotContains(t, string(data), "parameters:")
}
