package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CleanPath sanitizes a file path and makes it absolute. Paths that still
// contain ".." after cleaning are rejected.
func CleanPath(path string) (string, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}

	cleaned := filepath.Clean(expanded)
	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid path: contains directory traversal")
	}

	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ValidatePath cleans path and ensures it stays within baseDir.
func ValidatePath(path, baseDir string) (string, error) {
	cleanedPath, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	cleanedBase, err := CleanPath(baseDir)
	if err != nil {
		return "", err
	}

	if cleanedPath != cleanedBase && !strings.HasPrefix(cleanedPath, cleanedBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path is outside allowed directory")
	}
	return cleanedPath, nil
}
