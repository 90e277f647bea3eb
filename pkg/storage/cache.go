// Package storage keeps named files under an application directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dixieflatline76/wallsource/util/log"
)

// ErrInvalidName is returned for names that would escape the storage directory.
var ErrInvalidName = errors.New("invalid name")

// FileCache stores byte blobs under a root directory, one file per name.
type FileCache struct {
	rootDir string
}

// NewFileCache creates a FileCache rooted at rootDir. The directory is created lazily.
func NewFileCache(rootDir string) *FileCache {
	return &FileCache{rootDir: rootDir}
}

// Dir returns the root directory.
func (fc *FileCache) Dir() string {
	return fc.rootDir
}

// validateName rejects names containing path traversal characters.
func validateName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the absolute path for name.
func (fc *FileCache) Path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	return filepath.Join(fc.rootDir, name), nil
}

// Write stores data under name, replacing any previous content atomically.
func (fc *FileCache) Write(name string, data []byte) (string, error) {
	path, err := fc.Path(name)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Read returns the bytes stored under name.
func (fc *FileCache) Read(name string) ([]byte, error) {
	path, err := fc.Path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Exists reports whether a regular file is stored under name.
func (fc *FileCache) Exists(name string) bool {
	path, err := fc.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes name. Deleting a missing name is not an error.
func (fc *FileCache) Delete(name string) error {
	path, err := fc.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// CleanupOrphans removes files whose names are not in known and returns how
// many were deleted.
func (fc *FileCache) CleanupOrphans(known map[string]bool) int {
	entries, err := os.ReadDir(fc.rootDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("FileCache: Failed to list %s: %v", fc.rootDir, err)
		}
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || known[entry.Name()] || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(fc.rootDir, entry.Name())); err == nil {
			deleted++
		}
	}
	if deleted > 0 {
		log.Printf("FileCache: Removed %d orphaned files from %s", deleted, fc.rootDir)
	}
	return deleted
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
