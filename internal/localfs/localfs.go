// Package localfs is a sandboxed document store for planning
// documents. All files live directly under one allowed directory;
// names with separators or traversal are rejected before any IO.
package localfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/planhub/planhub/internal/core"
)

const maxDocumentBytes = 1 << 20

// Store manages documents under a single directory.
type Store struct {
	dir string
}

// NewStore creates the allowed directory if needed and returns a Store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("localfs: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// List returns the document names in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, core.WrapError(core.KindUnavailable, "document store unavailable", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the content of a document.
func (s *Store) Read(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", core.Errorf(core.KindNotFound, "document %q not found", name)
	}
	if err != nil {
		return "", core.WrapError(core.KindUnavailable, "document store unavailable", err)
	}
	return string(data), nil
}

// Write stores a document, replacing any existing content under the
// same name. The write is synced to disk before success is returned.
func (s *Store) Write(name, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if len(content) > maxDocumentBytes {
		return core.Errorf(core.KindPayloadTooLarge, "document is %d bytes, limit is %d", len(content), maxDocumentBytes)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return core.WrapError(core.KindUnavailable, "document store unavailable", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return core.WrapError(core.KindUnavailable, "document store unavailable", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return core.WrapError(core.KindUnavailable, "document store unavailable", err)
	}
	return f.Close()
}

// resolve validates a document name and returns its absolute path.
func (s *Store) resolve(name string) (string, error) {
	if name == "" {
		return "", core.Errorf(core.KindInvalidArgument, "filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", core.Errorf(core.KindInvalidArgument, "filename %q must be a bare file name", name)
	}
	return filepath.Join(s.dir, name), nil
}
