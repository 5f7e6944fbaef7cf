package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wp-debug-viewer/backend/internal/config"
)

// switchFlags maps the shorthand flags of "set" to constants.
var switchFlags = []struct {
	flag, constant, usage string
}{
	{"debug", "WP_DEBUG", "enable debug mode"},
	{"log", "WP_DEBUG_LOG", "write errors to wp-content/debug.log"},
	{"display", "WP_DEBUG_DISPLAY", "show errors in page output"},
}

func newInitCmd(a *app) *cobra.Command {
	var (
		wpRoot string
		force  bool
		mkdir  bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a default config file",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			cfg := config.DefaultConfig()
			cfg.Paths.WPRoot = wpRoot
			if err := cfg.Validate(); err != nil {
				return err
			}
			if dir := filepath.Dir(a.configPath); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}
			if err := cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.configPath)

			if !mkdir {
				return nil
			}
			saved, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if err := saved.EnsureDirectories(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", saved.Backups.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&wpRoot, "wp-root", ".", "WordPress installation directory, relative to the config file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVar(&mkdir, "mkdir", false, "also create the backup directory")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current debug constants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd, format)
			if err != nil {
				return err
			}
			settings, err := ctl.CurrentSettings()
			if err != nil {
				return err
			}
			return r.RenderSettings(settings)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json, msgpack")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var (
		consts []string
		format string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change debug constants in wp-config.php",
		Long: `Change debug constants in wp-config.php. Constants that are not named
keep their current value. Missing constants are added to a marked section
before the "stop editing" line. A backup is taken before any change.

Examples:
  wpdebug set --debug --log --display=false
  wpdebug set --const SCRIPT_DEBUG=true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := collectOverrides(cmd, consts)
			if err != nil {
				return err
			}
			if len(overrides) == 0 {
				return errors.New("nothing to set: pass --debug, --log, --display or --const NAME=true|false")
			}

			ctl, err := a.controller()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd, format)
			if err != nil {
				return err
			}
			desired, err := ctl.DesiredFromCurrent(overrides)
			if err != nil {
				return err
			}

			result, err := ctl.ApplySettings(desired)
			if result != nil {
				if rerr := r.RenderUpdate(result); rerr != nil && err == nil {
					err = rerr
				}
			}
			return err
		},
	}
	for _, s := range switchFlags {
		cmd.Flags().Bool(s.flag, false, s.usage+" ("+s.constant+")")
	}
	cmd.Flags().StringArrayVar(&consts, "const", nil, "set any constant, as NAME=true|false (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json, msgpack")
	return cmd
}

// collectOverrides gathers the constants named on the command line. Flags
// left unset are not included.
func collectOverrides(cmd *cobra.Command, consts []string) (map[string]bool, error) {
	overrides := make(map[string]bool)
	for _, s := range switchFlags {
		if !cmd.Flags().Changed(s.flag) {
			continue
		}
		v, err := cmd.Flags().GetBool(s.flag)
		if err != nil {
			return nil, err
		}
		overrides[s.constant] = v
	}
	for _, c := range consts {
		name, raw, ok := strings.Cut(c, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --const %q: want NAME=true|false", c)
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --const %q: %q is not a boolean", c, raw)
		}
		overrides[strings.TrimSpace(name)] = v
	}
	return overrides, nil
}

func newBackupsCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List wp-config.php backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd, format)
			if err != nil {
				return err
			}
			backups, err := ctl.ListBackups()
			if err != nil {
				return err
			}
			return r.RenderBackups(backups)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json, msgpack")
	return cmd
}
