package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DocumentStore reads and writes named text documents in an app-private directory.
type DocumentStore struct {
	dir string
}

// NewDocumentStore creates a DocumentStore rooted at dir.
func NewDocumentStore(dir string) *DocumentStore {
	return &DocumentStore{dir: dir}
}

// Read returns the content of the named document. A missing document yields an
// error satisfying os.IsNotExist.
func (ds *DocumentStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(ds.dir, name))
}

// Write replaces the named document. Either the whole new content is visible
// afterwards or, on error, the previous one.
func (ds *DocumentStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(ds.dir, name), data); err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}
