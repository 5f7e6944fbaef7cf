// mock_fs.go - Failure-injecting file system for testing
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wp-debug-viewer/backend/internal/storage"
)

// MockFS wraps the real file system and lets tests inject failures by path.
// A rule registered for a directory applies to every file inside it.
type MockFS struct {
	storage.OSFS

	mu          sync.Mutex
	readErrs    map[string]error
	writeErrs   map[string]error
	mkdirErr    error
	removeErr   error
	shortWrites map[string]bool
	dropWrites  map[string]bool
	writes      []string
}

// NewMockFS creates a MockFS with no failures configured
func NewMockFS() *MockFS {
	return &MockFS{
		readErrs:    make(map[string]error),
		writeErrs:   make(map[string]error),
		shortWrites: make(map[string]bool),
		dropWrites:  make(map[string]bool),
	}
}

func (m *MockFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	err := lookup(m.readErrs, name)
	m.mu.Unlock()
	if err != nil {
		return nil, &os.PathError{Op: "read", Path: name, Err: err}
	}
	return m.OSFS.ReadFile(name)
}

func (m *MockFS) Open(name string) (io.ReadCloser, error) {
	m.mu.Lock()
	err := lookup(m.readErrs, name)
	m.mu.Unlock()
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return m.OSFS.Open(name)
}

func (m *MockFS) WriteFile(name string, data []byte, perm os.FileMode) (int, error) {
	m.mu.Lock()
	m.writes = append(m.writes, name)
	err := lookup(m.writeErrs, name)
	short := lookup(m.shortWrites, name)
	drop := lookup(m.dropWrites, name)
	m.mu.Unlock()

	switch {
	case err != nil:
		return 0, &os.PathError{Op: "write", Path: name, Err: err}
	case drop:
		return len(data), nil
	case short:
		return m.OSFS.WriteFile(name, data[:len(data)/2], perm)
	}
	return m.OSFS.WriteFile(name, data, perm)
}

func (m *MockFS) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	err := m.mkdirErr
	m.mu.Unlock()
	if err != nil {
		return &os.PathError{Op: "mkdir", Path: path, Err: err}
	}
	return m.OSFS.MkdirAll(path, perm)
}

func (m *MockFS) Remove(name string) error {
	m.mu.Lock()
	err := m.removeErr
	m.mu.Unlock()
	if err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	return m.OSFS.Remove(name)
}

// Ensure MockFS implements storage.FS
var _ storage.FS = (*MockFS)(nil)

// Test Helper Methods

// FailRead makes reads of path (or files under it) return err
func (m *MockFS) FailRead(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs[filepath.Clean(path)] = err
}

// FailWrite makes writes to path (or files under it) return err
func (m *MockFS) FailWrite(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrs[filepath.Clean(path)] = err
}

// ShortWrite makes writes to path persist only half of the data
func (m *MockFS) ShortWrite(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortWrites[filepath.Clean(path)] = true
}

// DropWrites makes writes to path report success without touching disk
func (m *MockFS) DropWrites(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropWrites[filepath.Clean(path)] = true
}

// FailMkdir makes every MkdirAll call return err
func (m *MockFS) FailMkdir(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirErr = err
}

// FailRemove makes every Remove call return err
func (m *MockFS) FailRemove(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeErr = err
}

// Writes returns every path passed to WriteFile, in call order
func (m *MockFS) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

func lookup[T comparable](rules map[string]T, name string) T {
	var zero T
	name = filepath.Clean(name)
	for p, v := range rules {
		if name == p || strings.HasPrefix(name, p+string(filepath.Separator)) {
			return v
		}
	}
	return zero
}
