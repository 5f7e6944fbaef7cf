// Package config provides YAML-based configuration for the wpdebug tool.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wp-debug-viewer/backend/internal/configedit"
	"github.com/wp-debug-viewer/backend/internal/output"
)

// DefaultFileName is the configuration file looked up when none is given.
const DefaultFileName = "wpdebug.yaml"

// AppConfig represents the root configuration document.
type AppConfig struct {
	Paths   PathsConfig   `yaml:"paths"`
	Editor  EditorConfig  `yaml:"editor"`
	Backups BackupsConfig `yaml:"backups"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig locates the WordPress installation.
type PathsConfig struct {
	// WPRoot is the WordPress installation directory.
	WPRoot string `yaml:"wp_root"`
	// WPConfig overrides wp-config.php discovery when set.
	WPConfig string `yaml:"wp_config,omitempty"`
	// DebugLog defaults to <wp_root>/wp-content/debug.log.
	DebugLog string `yaml:"debug_log,omitempty"`
}

// EditorConfig controls how wp-config.php is patched.
type EditorConfig struct {
	SectionMarker    string   `yaml:"section_marker"`
	SentinelMarker   string   `yaml:"sentinel_marker"`
	Constants        []string `yaml:"constants"`
	VerifyAfterWrite bool     `yaml:"verify_after_write"`
}

// BackupsConfig controls wp-config.php snapshots.
type BackupsConfig struct {
	// Directory defaults to <wp_root>/wp-content/debug-log-backups.
	Directory  string `yaml:"directory,omitempty"`
	MaxBackups int    `yaml:"max_backups"`
	Prefix     string `yaml:"prefix"`
	Extension  string `yaml:"extension"`
	Protect    bool   `yaml:"protect"`
}

// ViewerConfig holds log viewing defaults.
type ViewerConfig struct {
	PageSize int `yaml:"page_size"`
	// CategoryRules optionally points at a YAML rules file replacing the
	// built-in classification.
	CategoryRules string `yaml:"category_rules,omitempty"`
	Format        string `yaml:"format"`
}

// LoggingConfig controls the tool's own diagnostics.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	editor := configedit.DefaultOptions()
	return &AppConfig{
		Paths: PathsConfig{
			WPRoot: ".",
		},
		Editor: EditorConfig{
			SectionMarker:    editor.SectionMarker,
			SentinelMarker:   editor.SentinelMarker,
			Constants:        append([]string(nil), editor.Constants...),
			VerifyAfterWrite: editor.VerifyAfterWrite,
		},
		Backups: BackupsConfig{
			MaxBackups: 5,
			Prefix:     "wp-config-backup",
			Extension:  "php",
			Protect:    true,
		},
		Viewer: ViewerConfig{
			PageSize: 100,
			Format:   output.FormatText,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied and relative paths are resolved
// against the file's directory.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# wpdebug configuration\n# Relative paths are resolved against this file's directory.\n\n")
	if err := os.WriteFile(configPath, append(header, out...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"WPDEBUG_WP_ROOT", &c.Paths.WPRoot},
		{"WPDEBUG_WP_CONFIG", &c.Paths.WPConfig},
		{"WPDEBUG_DEBUG_LOG", &c.Paths.DebugLog},
		{"WPDEBUG_BACKUP_DIR", &c.Backups.Directory},
		{"WPDEBUG_LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file
// location and fills in paths derived from the WordPress root.
func (c *AppConfig) resolvePaths(configDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(configDir, p)
	}

	c.Paths.WPRoot = abs(c.Paths.WPRoot)
	c.Paths.WPConfig = abs(c.Paths.WPConfig)
	c.Paths.DebugLog = abs(c.Paths.DebugLog)
	c.Backups.Directory = abs(c.Backups.Directory)
	c.Viewer.CategoryRules = abs(c.Viewer.CategoryRules)

	if c.Paths.DebugLog == "" {
		c.Paths.DebugLog = filepath.Join(c.Paths.WPRoot, "wp-content", "debug.log")
	}
	if c.Backups.Directory == "" {
		c.Backups.Directory = filepath.Join(c.Paths.WPRoot, "wp-content", "debug-log-backups")
	}
}

// Validate checks value ranges and enumerations.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Paths.WPRoot == "" {
		errs = append(errs, errors.New("paths.wp_root is required"))
	}
	if strings.TrimSpace(c.Editor.SectionMarker) == "" {
		errs = append(errs, errors.New("editor.section_marker must not be empty"))
	}
	if strings.TrimSpace(c.Editor.SentinelMarker) == "" {
		errs = append(errs, errors.New("editor.sentinel_marker must not be empty"))
	}
	if len(c.Editor.Constants) == 0 {
		errs = append(errs, errors.New("editor.constants must name at least one constant"))
	}
	if c.Backups.MaxBackups < 1 {
		errs = append(errs, fmt.Errorf("backups.max_backups must be at least 1, got %d", c.Backups.MaxBackups))
	}
	if c.Backups.Prefix == "" {
		errs = append(errs, errors.New("backups.prefix must not be empty"))
	}
	if c.Viewer.PageSize < 1 {
		errs = append(errs, fmt.Errorf("viewer.page_size must be at least 1, got %d", c.Viewer.PageSize))
	}
	switch c.Viewer.Format {
	case output.FormatText, output.FormatJSON, output.FormatMsgpack:
	default:
		errs = append(errs, fmt.Errorf("viewer.format %q is not one of text, json, msgpack", c.Viewer.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// EditorOptions converts the editor section into configedit options.
func (c *AppConfig) EditorOptions() configedit.Options {
	return configedit.Options{
		SectionMarker:    c.Editor.SectionMarker,
		SentinelMarker:   c.Editor.SentinelMarker,
		Constants:        append([]string(nil), c.Editor.Constants...),
		VerifyAfterWrite: c.Editor.VerifyAfterWrite,
	}
}

// EnsureDirectories creates the backup directory.
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Backups.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Backups.Directory, err)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", name)
	}
	return level, nil
}
