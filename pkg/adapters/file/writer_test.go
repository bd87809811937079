package file_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aretw0/capture/internal/testutils"
	"github.com/aretw0/capture/pkg/adapters/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	root := testutils.OutputRoot(t)
	w := file.NewWriter()

	dir := filepath.Join(root, "run", "firefox")
	require.NoError(t, w.EnsureDir(dir))

	path := filepath.Join(dir, "home1.png")
	require.NoError(t, w.Write(path, []byte("png-bytes")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	// Only the final file remains, no temp leftovers.
	assert.Equal(t, []string{"home1.png"}, testutils.ListFiles(t, dir))
}

func TestWriter_EnsureDirExisting(t *testing.T) {
	root := testutils.OutputRoot(t)
	w := file.NewWriter()

	dir := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	assert.NoError(t, w.EnsureDir(dir), "pre-existing directory must not fail")
}

func TestWriter_EnsureDirConcurrent(t *testing.T) {
	root := testutils.OutputRoot(t)
	w := file.NewWriter(file.WithoutSync())
	dir := filepath.Join(root, "run", "chrome")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.EnsureDir(dir))
		}()
	}
	wg.Wait()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriter_EnsureDirBlockedByFile(t *testing.T) {
	root := testutils.OutputRoot(t)
	w := file.NewWriter()

	blocker := filepath.Join(root, "run")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	assert.Error(t, w.EnsureDir(filepath.Join(blocker, "firefox")))
}

func TestWriter_WriteMissingDir(t *testing.T) {
	root := testutils.OutputRoot(t)
	w := file.NewWriter()

	err := w.Write(filepath.Join(root, "missing", "x.png"), []byte("x"))
	assert.Error(t, err)
}
