package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// BackupTimeLayout is the UTC timestamp embedded in backup file names.
const BackupTimeLayout = "2006-01-02-15-04-05"

const (
	htaccessName    = ".htaccess"
	htaccessContent = "deny from all"
	indexName       = "index.php"
	indexContent    = "<?php // Silence is golden"
)

// BackupOptions configures a BackupStore.
type BackupOptions struct {
	Dir        string
	Prefix     string
	Extension  string
	MaxBackups int
	// Protect drops a deny-all .htaccess and an empty index.php into the
	// directory so a web server neither serves nor lists the backups.
	Protect bool
	// Now overrides the clock used for backup names. Defaults to time.Now.
	Now func() time.Time
}

// BackupStore keeps a bounded, rotating set of snapshots of a file.
type BackupStore struct {
	fs      FS
	opts    BackupOptions
	pattern *regexp.Regexp
	logger  *slog.Logger
}

// NewBackupStore creates a BackupStore. The directory is created lazily on
// the first backup.
func NewBackupStore(fsys FS, opts BackupOptions, logger *slog.Logger) (*BackupStore, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if opts.Prefix == "" {
		return nil, fmt.Errorf("backup prefix is required")
	}
	if opts.MaxBackups < 1 {
		return nil, fmt.Errorf("max backups must be at least 1, got %d", opts.MaxBackups)
	}
	if fsys == nil {
		fsys = OSFS{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	suffix := ""
	if opts.Extension != "" {
		suffix = `\.` + regexp.QuoteMeta(opts.Extension)
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(opts.Prefix) +
		`-\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}` + suffix + `$`)

	return &BackupStore{
		fs:      fsys,
		opts:    opts,
		pattern: pattern,
		logger:  logger.With("component", "backups"),
	}, nil
}

// Backup copies srcPath byte-for-byte into the backup directory, evicting
// the oldest snapshots first so the set never exceeds MaxBackups.
func (s *BackupStore) Backup(srcPath string) (*models.BackupInfo, error) {
	if err := s.ensureDir(); err != nil {
		return nil, models.NewBackupError(s.opts.Dir, "could not create backup directory", err)
	}

	data, err := s.fs.ReadFile(srcPath)
	if err != nil {
		return nil, models.NewBackupError(srcPath, "could not read source file", err)
	}

	if err := s.rotate(); err != nil {
		return nil, models.NewBackupError(s.opts.Dir, "could not rotate existing backups", err)
	}

	now := s.opts.Now().UTC().Truncate(time.Second)
	name := s.nameFor(now)
	dst := filepath.Join(s.opts.Dir, name)

	n, err := s.fs.WriteFile(dst, data, 0644)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.discard(dst)
		return nil, models.NewBackupError(dst, "could not write backup file", err)
	}

	written, err := s.fs.ReadFile(dst)
	if err != nil || !bytes.Equal(written, data) {
		s.discard(dst)
		if err == nil {
			err = errors.New("content mismatch")
		}
		return nil, models.NewBackupError(dst, "backup verification failed", err)
	}

	// Rotation orders by mtime, so pin it to the clock that named the file.
	if err := s.fs.Chtimes(dst, now, now); err != nil {
		s.logger.Warn("could not set backup mtime", "path", dst, "error", err)
	}

	s.logger.Info("created backup", "path", dst, "size", len(data))
	return &models.BackupInfo{
		Name:      name,
		Path:      dst,
		Size:      int64(len(data)),
		CreatedAt: now,
	}, nil
}

// List returns existing backups, newest first.
func (s *BackupStore) List() ([]models.BackupInfo, error) {
	backups, err := s.listOldestFirst()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(backups)-1; i < j; i, j = i+1, j-1 {
		backups[i], backups[j] = backups[j], backups[i]
	}
	return backups, nil
}

// rotate removes the oldest backups until there is room for one more.
func (s *BackupStore) rotate() error {
	backups, err := s.listOldestFirst()
	if err != nil {
		return err
	}
	for len(backups) > 0 && len(backups) >= s.opts.MaxBackups {
		oldest := backups[0]
		if err := s.fs.Remove(oldest.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", oldest.Name, err)
		}
		s.logger.Info("evicted backup", "path", oldest.Path)
		backups = backups[1:]
	}
	return nil
}

func (s *BackupStore) listOldestFirst() ([]models.BackupInfo, error) {
	entries, err := s.fs.ReadDir(s.opts.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.BackupInfo{}, nil
		}
		return nil, fmt.Errorf("listing backup directory: %w", err)
	}

	backups := make([]models.BackupInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !s.pattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		backups = append(backups, models.BackupInfo{
			Name:      e.Name(),
			Path:      filepath.Join(s.opts.Dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Name < backups[j].Name
		}
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})
	return backups, nil
}

func (s *BackupStore) ensureDir() error {
	info, err := s.fs.Stat(s.opts.Dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s is not a directory", s.opts.Dir)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return err
	case err != nil:
		if err := s.fs.MkdirAll(s.opts.Dir, 0755); err != nil {
			return err
		}
	}

	if s.opts.Protect {
		s.placeholder(htaccessName, htaccessContent)
		s.placeholder(indexName, indexContent)
	}
	return nil
}

// placeholder writes a hardening file if it is missing. Failures are logged
// only; the backups themselves are still usable.
func (s *BackupStore) placeholder(name, content string) {
	path := filepath.Join(s.opts.Dir, name)
	if _, err := s.fs.Stat(path); err == nil {
		return
	}
	if _, err := s.fs.WriteFile(path, []byte(content), 0644); err != nil {
		s.logger.Warn("could not write backup directory placeholder", "path", path, "error", err)
	}
}

func (s *BackupStore) discard(path string) {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not remove partial backup", "path", path, "error", err)
	}
}

func (s *BackupStore) nameFor(t time.Time) string {
	name := s.opts.Prefix + "-" + t.Format(BackupTimeLayout)
	if s.opts.Extension != "" {
		name += "." + s.opts.Extension
	}
	return name
}
