// Package settings owns the persisted configuration document: where it is
// stored, how it is decoded and validated, and the cached copy the trigger
// engine reads from.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"homeweather/internal/types"
)

// Store persists a single configuration document.
// Load reports found=false when nothing has been saved yet. A stored document
// that cannot be decoded is an ErrCodeParseDocument error.
type Store interface {
	Load(ctx context.Context) (doc *types.Document, found bool, err error)
	Save(ctx context.Context, doc *types.Document) error
}

// FileStore keeps the document as YAML on local disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the document over DefaultDocument.
func (s *FileStore) Load(_ context.Context) (*types.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalStorage, "failed to read settings file", err)
	}

	doc, err := DecodeYAML(data)
	if err != nil {
		return nil, true, err
	}
	return doc, true, nil
}

// Save writes the document atomically through a temp file and rename.
func (s *FileStore) Save(_ context.Context, doc *types.Document) error {
	data, err := EncodeYAML(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to create settings directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to create temp settings file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write settings file", err)
	}
	if err := tmp.Close(); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write settings file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to replace settings file", err)
	}
	return nil
}

// Name implements the health probe contract.
func (s *FileStore) Name() string { return "settings_file" }

// Check verifies the settings directory is reachable.
func (s *FileStore) Check(context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "settings directory unavailable", err)
	}
	return nil
}

// DecodeYAML decodes a YAML (or JSON) document over DefaultDocument.
func DecodeYAML(data []byte) (*types.Document, error) {
	doc := types.DefaultDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseDocument, "failed to decode settings document", err)
	}
	return &doc, nil
}

// EncodeYAML renders the document as YAML.
func EncodeYAML(doc *types.Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("failed to encode settings document: %v", err), err)
	}
	return data, nil
}
