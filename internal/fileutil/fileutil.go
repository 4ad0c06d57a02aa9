// Package fileutil provides utility functions for file operations
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// OS is the filesystem used outside of tests.
var OS = afero.NewOsFs()

// WriteAtomicFile writes data to a temp file first and then renames it, so
// readers never observe a partial write.
func WriteAtomicFile(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile := path + ".tmp"
	if err := afero.WriteFile(fs, tempFile, data, perm); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := fs.Rename(tempFile, path); err != nil {
		fs.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// Exists reports whether every path exists.
func Exists(fs afero.Fs, paths ...string) (bool, error) {
	for _, p := range paths {
		if _, err := fs.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	return true, nil
}
