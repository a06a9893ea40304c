package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpisync/internal/observability"
	"kpisync/internal/report"
	"kpisync/internal/security"
	"kpisync/internal/testutil"
	"kpisync/pkg/models"
)

// newFakeWarehouse answers report queries in memory. Queries containing
// "FAIL" return an error and other SELECTs echo their statement.
func newFakeWarehouse() *testutil.Warehouse {
	wh := testutil.NewWarehouse().
		Fail("FAIL", errors.New("Syntax error: Unexpected keyword FAIL")).
		On("conversion_rate > 1", testutil.Count(2)).
		On("COUNT(1)", testutil.Count(0)).
		On("by_segment", testutil.Rows(
			[]string{"a", "b", "c", "customer_segment", "d", "e"},
			[]interface{}{0.5, int64(5), int64(10), "high", 0.5, int64(5)},
		))
	wh.Fallback = func(query string) *report.ResultSet {
		if strings.HasPrefix(query, "SELECT") {
			return testutil.Rows([]string{"query"}, []interface{}{query})
		}
		return &report.ResultSet{}
	}
	return wh
}

// setupCommand points kpisync at a temporary config and in-memory backends.
func setupCommand(t *testing.T, configYAML string) (*testutil.Warehouse, *report.MemorySink, string) {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if configYAML != "" {
		require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0600))
	}

	for _, key := range []string{
		"GOOGLE_CLOUD_PROJECT", "BQ_LOCATION", "SHEET_NAME", "GOOGLE_APPLICATION_CREDENTIALS",
		"RAW_DATASET", "RAW_TABLE", "AUDIT_DATASET", "AUDIT_TABLE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("KPISYNC_CONFIG", configPath)

	wh := newFakeWarehouse()
	sink := report.NewMemorySink()

	origWarehouse, origBigQuery, origSink, origKeyring := openWarehouse, openBigQuery, openSink, openKeyring
	openWarehouse = func(context.Context, *models.Config, *observability.Logger) (warehouse, error) { return wh, nil }
	openBigQuery = func(context.Context, *models.Config, *observability.Logger) (bigQueryWarehouse, error) { return wh, nil }
	openSink = func(context.Context, *models.Config, *observability.Logger) (report.Sink, error) { return sink, nil }
	keyDir := filepath.Join(dir, "credentials")
	openKeyring = func() (*security.CredentialStore, error) { return security.NewFileStore(keyDir) }
	t.Cleanup(func() {
		openWarehouse, openBigQuery, openSink, openKeyring = origWarehouse, origBigQuery, origSink, origKeyring
	})

	return wh, sink, configPath
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())

	err := rootCmd.Execute()
	return b.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommand(t, "--help")
	assert.NoError(t, err)

	assert.Contains(t, output, "Available Commands:")
	for _, name := range []string{"export", "audit", "ingest", "summary", "reports", "init", "credentials", "version"} {
		assert.Contains(t, output, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	_, err := executeCommand(t, "invalid-command")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "kpisync version dev")
}
