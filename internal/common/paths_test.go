package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	cleaned, err := CleanPath("/tmp/kpisync/./config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/kpisync/config.yaml", cleaned)

	_, err = CleanPath("../../etc/passwd")
	assert.Error(t, err)

	rel, err := CleanPath("config.yaml")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(rel))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := ExpandHome("~/.kpisync/sa.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".kpisync", "sa.json"), expanded)

	untouched, err := ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", untouched)
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	inside, err := ValidatePath(filepath.Join(base, "sa.cred"), base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "sa.cred"), inside)

	_, err = ValidatePath(base+"-sibling/sa.cred", base)
	assert.Error(t, err)

	_, err = ValidatePath("/etc/passwd", base)
	assert.Error(t, err)
}
