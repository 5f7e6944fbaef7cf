// Package controller ties the configuration editor, the backup store and the
// log parser to one WordPress installation.
package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wp-debug-viewer/backend/internal/config"
	"github.com/wp-debug-viewer/backend/internal/configedit"
	"github.com/wp-debug-viewer/backend/internal/logstore"
	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/parser"
	"github.com/wp-debug-viewer/backend/internal/storage"
)

// pathLocks serializes updates per absolute config path across controllers.
var pathLocks = struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}{m: make(map[string]*sync.Mutex)}

func lockFor(path string) *sync.Mutex {
	pathLocks.mu.Lock()
	defer pathLocks.mu.Unlock()
	l, ok := pathLocks.m[path]
	if !ok {
		l = &sync.Mutex{}
		pathLocks.m[path] = l
	}
	return l
}

// Controller manages debug settings and the debug log of one site.
type Controller struct {
	fs         storage.FS
	configPath string
	logPath    string
	constants  []string
	pageSize   int
	backups    *storage.BackupStore
	editor     *configedit.Editor
	parser     *parser.Parser
	now        func() time.Time
	logger     *slog.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithFS replaces the local file system.
func WithFS(fsys storage.FS) Option {
	return func(c *Controller) { c.fs = fsys }
}

// WithClock replaces time.Now for backup names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a Controller from cfg.
func New(cfg *config.AppConfig, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		fs:        storage.OSFS{},
		logPath:   cfg.Paths.DebugLog,
		constants: append([]string(nil), cfg.Editor.Constants...),
		pageSize:  cfg.Viewer.PageSize,
		now:       time.Now,
		logger:    logger.With("component", "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.configPath = c.discoverConfig(cfg.Paths)

	backups, err := storage.NewBackupStore(c.fs, storage.BackupOptions{
		Dir:        cfg.Backups.Directory,
		Prefix:     cfg.Backups.Prefix,
		Extension:  cfg.Backups.Extension,
		MaxBackups: cfg.Backups.MaxBackups,
		Protect:    cfg.Backups.Protect,
		Now:        c.now,
	}, logger)
	if err != nil {
		return nil, err
	}
	c.backups = backups

	c.editor, err = configedit.NewEditor(c.fs, backups, cfg.EditorOptions(), logger)
	if err != nil {
		return nil, err
	}

	classifier := parser.DefaultClassifier()
	if cfg.Viewer.CategoryRules != "" {
		rules, err := parser.ParseCategoryRules(cfg.Viewer.CategoryRules)
		if err != nil {
			return nil, err
		}
		if classifier, err = parser.NewClassifier(rules.Rules); err != nil {
			return nil, fmt.Errorf("category rules %s: %w", cfg.Viewer.CategoryRules, err)
		}
	}
	c.parser = parser.NewParser(classifier)

	c.logger.Debug("controller ready", "wp_config", c.configPath, "debug_log", c.logPath)
	return c, nil
}

// discoverConfig follows WordPress's lookup: the root first, then the parent
// directory unless the parent is itself a WordPress root.
func (c *Controller) discoverConfig(paths config.PathsConfig) string {
	if paths.WPConfig != "" {
		return paths.WPConfig
	}
	inRoot := filepath.Join(paths.WPRoot, "wp-config.php")
	if c.exists(inRoot) {
		return inRoot
	}
	parent := filepath.Dir(filepath.Clean(paths.WPRoot))
	inParent := filepath.Join(parent, "wp-config.php")
	if c.exists(inParent) && !c.exists(filepath.Join(parent, "wp-settings.php")) {
		return inParent
	}
	return inRoot
}

func (c *Controller) exists(path string) bool {
	_, err := c.fs.Stat(path)
	return err == nil
}

// ConfigPath returns the wp-config.php in use.
func (c *Controller) ConfigPath() string {
	return c.configPath
}

// LogPath returns the debug.log in use.
func (c *Controller) LogPath() string {
	return c.logPath
}

// Constants returns the managed constant names in display order.
func (c *Controller) Constants() []string {
	return append([]string(nil), c.constants...)
}

// CurrentSettings reports every managed constant. Absent constants and
// non-boolean definitions read as false.
func (c *Controller) CurrentSettings() ([]models.ConstantAssignment, error) {
	found, err := c.editor.ReadConstants(c.configPath, c.constants)
	if err != nil {
		return nil, err
	}
	settings := make([]models.ConstantAssignment, len(c.constants))
	for i, name := range c.constants {
		name = configedit.NormalizeName(name)
		settings[i] = models.ConstantAssignment{Name: name, Value: found[name]}
	}
	return settings, nil
}

// ApplySettings writes desired into wp-config.php. The config path stays
// locked for the whole backup, write and verify sequence.
func (c *Controller) ApplySettings(desired map[string]bool) (*models.UpdateResult, error) {
	abs, err := filepath.Abs(c.configPath)
	if err != nil {
		abs = c.configPath
	}
	lock := lockFor(abs)
	lock.Lock()
	defer lock.Unlock()

	id := uuid.New().String()
	logger := c.logger.With("op", id)
	logger.Debug("applying settings", "path", c.configPath, "constants", len(desired))

	result, err := c.editor.UpdateConstants(c.configPath, desired)
	if result != nil {
		result.ID = id
	}
	if err != nil {
		logger.Error("settings update failed", "error", err)
		return result, err
	}

	if result.Changed {
		logger.Info("settings saved",
			"updated", len(result.Updated), "inserted", len(result.Inserted), "backup", result.Backup.Path)
	}
	return result, nil
}

// ListBackups returns the backups newest first.
func (c *Controller) ListBackups() ([]models.BackupInfo, error) {
	return c.backups.List()
}

// ReadLog returns the whole debug.log. A missing log reads as empty.
func (c *Controller) ReadLog() (string, error) {
	raw, err := c.fs.ReadFile(c.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", models.NewReadError(c.logPath, err)
	}
	return string(raw), nil
}

// Entries parses the current debug.log.
func (c *Controller) Entries() ([]models.LogEntry, error) {
	raw, err := c.ReadLog()
	if err != nil {
		return nil, err
	}
	return c.parser.Parse(raw), nil
}

// ViewLog parses debug.log and returns the requested page. A page size
// below 1 uses the configured default.
func (c *Controller) ViewLog(q models.LogQuery) (*models.LogPage, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	if q.PageSize < 1 {
		q.PageSize = c.pageSize
	}
	return parser.Query(entries, q), nil
}

// ClearLog truncates debug.log. A missing log is left missing.
func (c *Controller) ClearLog() error {
	if _, err := c.fs.Stat(c.logPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if _, err := c.fs.WriteFile(c.logPath, nil, 0644); err != nil {
		return models.NewWriteError(c.logPath, "could not clear log", err)
	}
	c.logger.Info("debug log cleared", "path", c.logPath)
	return nil
}

// ExportLog streams debug.log into a new DuckDB file at dbPath and returns
// the number of entries written. A missing log exports no entries.
func (c *Controller) ExportLog(dbPath string) (int, error) {
	var entries []models.LogEntry
	f, err := c.fs.Open(c.logPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return 0, models.NewReadError(c.logPath, err)
	default:
		defer f.Close()
		start := time.Now()
		entries, err = c.parser.ParseReader(f, func(lines int, bytes int64) {
			c.logger.Debug("parsing log", "path", c.logPath, "lines", lines, "bytes", bytes)
		})
		if err != nil {
			return 0, models.NewReadError(c.logPath, err)
		}
		c.logger.Debug("parsed log", "entries", len(entries), "elapsed", time.Since(start))
	}

	store, err := logstore.Create(dbPath, c.logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	if err := store.AddEntries(entries); err != nil {
		return 0, err
	}
	if err := store.Finalize(); err != nil {
		return 0, err
	}
	c.logger.Info("exported log", "path", store.Path(), "entries", store.Len())
	return store.Len(), nil
}

// DesiredFromCurrent applies overrides on top of the managed constants that
// are currently defined with a true/false literal. Constants that are absent
// or defined by another expression are left out so they stay as they are.
func (c *Controller) DesiredFromCurrent(overrides map[string]bool) (map[string]bool, error) {
	current, err := c.editor.ReadConstants(c.configPath, c.constants)
	if err != nil {
		return nil, err
	}
	desired := make(map[string]bool, len(current)+len(overrides))
	for name, v := range current {
		desired[name] = v
	}
	for name, v := range overrides {
		desired[configedit.NormalizeName(name)] = v
	}
	return desired, nil
}
