package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpisync/internal/audit"
	"kpisync/internal/report"
	apperrors "kpisync/pkg/errors"
	"kpisync/pkg/models"
)

func withoutColor(t *testing.T) {
	t.Helper()
	original := supportsColor
	supportsColor = false
	t.Cleanup(func() { supportsColor = original })
}

func TestColorFunc(t *testing.T) {
	original := supportsColor
	defer func() { supportsColor = original }()

	supportsColor = true
	assert.NotEqual(t, "text", ColorSuccess("text"))
	assert.Contains(t, ColorError("text"), "text")

	supportsColor = false
	for _, f := range []func(string) string{ColorSuccess, ColorError, ColorWarning, ColorInfo, ColorProgress, ColorBold, ColorDim} {
		assert.Equal(t, "text", f("text"))
	}
}

func TestShowError(t *testing.T) {
	withoutColor(t)

	var buf bytes.Buffer
	err := apperrors.QueryExecutionError("SELECT 1", errors.New("Not found: Table acme:dm.kpis"))
	ShowError(&buf, err)

	out := buf.String()
	assert.Contains(t, out, "ERROR: query execution failed: Not found: Table acme:dm.kpis")
	assert.Contains(t, out, "code: "+string(apperrors.ErrCodeQueryExecution))
	assert.Contains(t, out, "TIP: Verify the referenced tables exist")

	buf.Reset()
	ShowError(&buf, errors.New("plain"))
	assert.Equal(t, "ERROR: plain\n", buf.String())
}

func TestShowMessages(t *testing.T) {
	withoutColor(t)

	var buf bytes.Buffer
	ShowSuccess(&buf, "done")
	ShowWarning(&buf, "careful")
	ShowInfo(&buf, "note")
	ShowHeader(&buf, "Title")

	out := buf.String()
	assert.Contains(t, out, "SUCCESS: done\n")
	assert.Contains(t, out, "WARNING: careful\n")
	assert.Contains(t, out, "INFO: note\n")
	assert.Contains(t, out, "Title")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue("abc"))
	assert.Equal(t, "0.25", FormatValue(0.25))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "2025-05-01T12:00:00Z", FormatValue(time.Date(2025, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 7200))))
}

func TestRenderRunReport(t *testing.T) {
	rep := &report.RunReport{
		RunID:     "run-1",
		Container: report.Container{URL: "https://docs.google.com/spreadsheets/d/abc"},
		Duration:  2 * time.Second,
		Outcomes: []report.Outcome{
			{Name: "Segment KPIs", Status: report.StatusSucceeded, Stage: report.StageDone, RowCount: 3},
			{Name: "Broken", Status: report.StatusFailed, Stage: report.StageExecuting, Err: errors.New("syntax error at line 1")},
		},
	}

	var buf bytes.Buffer
	RenderRunReport(&buf, rep, false)
	out := buf.String()

	assert.Contains(t, out, "Segment KPIs")
	assert.Contains(t, out, "SUCCEEDED")
	assert.Contains(t, out, "syntax error at line 1")
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "Spreadsheet: https://docs.google.com/spreadsheets/d/abc")
}

func TestRenderResultSet(t *testing.T) {
	rs := &report.ResultSet{
		Columns: []string{"customer_segment", "conversion_rate"},
		Rows: [][]interface{}{
			{"high", 0.25},
			{"low", nil},
			{"mid", 0.1},
		},
	}

	var buf bytes.Buffer
	RenderResultSet(&buf, "Segment KPIs", rs, 2)
	out := buf.String()

	assert.Contains(t, out, "Segment KPIs (3 rows)")
	assert.Contains(t, out, "customer_segment")
	assert.Contains(t, out, "high")
	assert.NotContains(t, out, "mid")
	assert.Contains(t, out, "... 1 more rows")

	buf.Reset()
	RenderResultSet(&buf, "", &report.ResultSet{}, 0)
	assert.Contains(t, buf.String(), "(no columns)")
}

func TestRenderCatalog(t *testing.T) {
	catalog, err := report.NewCatalog(
		report.Definition{Name: "A", Template: "SELECT * FROM {project_id}.{dataset}.t"},
		report.Definition{Name: "B", Template: "SELECT 1"},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	RenderCatalog(&buf, catalog)
	assert.Contains(t, buf.String(), "project_id, dataset")
}

func TestRenderAuditResults(t *testing.T) {
	var buf bytes.Buffer
	RenderAuditResults(&buf, []audit.Result{
		{Check: "customer_id_not_null", Status: audit.StatusPass, Details: "nulls=0"},
		{Check: "conversion_rate_range", Status: audit.StatusFail, Details: "out_of_range=2"},
	}, false)

	out := buf.String()
	assert.Contains(t, out, "customer_id_not_null")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "out_of_range=2")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate(strings.Repeat("abcdefg", 3), 10))
}

// scriptedWizard answers every prompt from fixed values.
func scriptedWizard(wh warehouseAnswers, sf snowflakeAnswers, sh sheetsAnswers, confirm bool) (*ConfigWizard, *bytes.Buffer) {
	var buf bytes.Buffer
	w := NewConfigWizard(&buf)
	w.ask = func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error {
		switch r := response.(type) {
		case *warehouseAnswers:
			*r = wh
		case *snowflakeAnswers:
			*r = sf
		case *sheetsAnswers:
			*r = sh
		}
		return nil
	}
	w.askOne = func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
		*(response.(*bool)) = confirm
		return nil
	}
	return w, &buf
}

func TestConfigWizardRun(t *testing.T) {
	withoutColor(t)

	w, out := scriptedWizard(
		warehouseAnswers{Kind: "bigquery", Project: " acme ", Location: "EU", Dataset: "dm"},
		snowflakeAnswers{},
		sheetsAnswers{Spreadsheet: "KPIs", CredentialsFile: "/keys/sa.json", Share: true},
		true,
	)

	base := &models.Config{Runner: models.Runner{Parallelism: 4}}
	config, err := w.Run(base)
	require.NoError(t, err)

	assert.Equal(t, "bigquery", config.Warehouse.Kind)
	assert.Equal(t, "acme", config.Warehouse.ProjectID)
	assert.Equal(t, "EU", config.Warehouse.Location)
	assert.Equal(t, "dm", config.Warehouse.Dataset)
	assert.Equal(t, "KPIs", config.Sheets.Spreadsheet)
	assert.Equal(t, "/keys/sa.json", config.Sheets.CredentialsFile)
	assert.True(t, config.Sheets.ShareWithAnyone)
	assert.Equal(t, 4, config.Runner.Parallelism)
	assert.Equal(t, 3, w.currentStep)
	assert.Contains(t, out.String(), "[Step 3/3] Review Configuration")
}

func TestConfigWizardSnowflake(t *testing.T) {
	withoutColor(t)

	w, _ := scriptedWizard(
		warehouseAnswers{Kind: "snowflake", Project: "acme", Dataset: "dm"},
		snowflakeAnswers{Account: "xy123", Username: "etl", Password: "secret", Warehouse: "WH"},
		sheetsAnswers{Spreadsheet: "KPIs"},
		true,
	)

	config, err := w.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, "xy123", config.Warehouse.Snowflake.Account)
	assert.Equal(t, "WH", config.Warehouse.Snowflake.Warehouse)
}

func TestConfigWizardCancelled(t *testing.T) {
	withoutColor(t)

	w, _ := scriptedWizard(warehouseAnswers{Kind: "bigquery"}, snowflakeAnswers{}, sheetsAnswers{}, false)
	_, err := w.Run(nil)
	assert.ErrorIs(t, err, ErrCancelled)

	w, _ = scriptedWizard(warehouseAnswers{}, snowflakeAnswers{}, sheetsAnswers{}, true)
	w.ask = func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error {
		return terminal.InterruptErr
	}
	_, err = w.Run(nil)
	assert.ErrorIs(t, err, ErrCancelled)
}
