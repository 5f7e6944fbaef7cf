package storage

import (
	"io"
	"os"
	"time"
)

// FS is the file system surface used by the editor and the backup store.
// WriteFile reports the number of bytes written so callers can detect
// short writes.
type FS interface {
	ReadFile(name string) ([]byte, error)
	Open(name string) (io.ReadCloser, error)
	WriteFile(name string, data []byte, perm os.FileMode) (int, error)
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
	ReadDir(name string) ([]os.DirEntry, error)
	Stat(name string) (os.FileInfo, error)
	Chtimes(name string, atime, mtime time.Time) error
}

// OSFS implements FS using the local filesystem.
type OSFS struct{}

func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (OSFS) Open(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// WriteFile truncates and rewrites name in place. Existing permissions are
// kept; perm only applies when the file is created.
func (OSFS) WriteFile(name string, data []byte, perm os.FileMode) (int, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (OSFS) Remove(name string) error {
	return os.Remove(name)
}

func (OSFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFS) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

func (OSFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (OSFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}
