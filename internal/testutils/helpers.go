package testutils

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// OutputRoot creates a temporary output root for a test run.
// It fails the test immediately on error.
func OutputRoot(t *testing.T) string {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")
	return absPath
}

// ListFiles returns the names of the regular files in dir, sorted.
// A missing directory yields an empty list.
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}
	}
	require.NoError(t, err)

	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
