package file

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default permissions for run directories and artifacts.
const (
	DirPerm  os.FileMode = 0o755
	FilePerm os.FileMode = 0o644
)

// Writer persists artifacts on the local filesystem.
type Writer struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
	sync     bool
}

// Option configures the Writer.
type Option func(*Writer)

// WithoutSync skips fsync before the rename. Faster, less durable.
func WithoutSync() Option {
	return func(w *Writer) {
		w.sync = false
	}
}

// WithPerm overrides directory and file permissions.
func WithPerm(dir, file os.FileMode) Option {
	return func(w *Writer) {
		w.dirPerm = dir
		w.filePerm = file
	}
}

// NewWriter creates a Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{dirPerm: DirPerm, filePerm: FilePerm, sync: true}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnsureDir creates dir and its parents.
// It succeeds when the directory already exists or is created concurrently.
func (w *Writer) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, w.dirPerm); err != nil {
		return fmt.Errorf("failed to ensure directory %s: %w", dir, err)
	}
	return nil
}

// Write stores data at path atomically.
// It writes to a temporary file in the same directory, syncs it, and renames it
// into place, so readers never observe a partial image.
func (w *Writer) Write(path string, data []byte) error {
	dir := filepath.Dir(path)

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // No-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if w.sync {
		if err := tmpFile.Sync(); err != nil {
			return fmt.Errorf("failed to fsync temp file: %w", err)
		}
	}

	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, w.filePerm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
