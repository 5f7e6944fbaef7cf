// Package cli implements the wpdebug command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wp-debug-viewer/backend/internal/config"
	"github.com/wp-debug-viewer/backend/internal/controller"
	"github.com/wp-debug-viewer/backend/internal/output"
)

// Build-time variables injected via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// skipConfig marks commands that run without loading the config file.
const skipConfig = "skip-config"

// app is the state shared by all commands of one invocation.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.AppConfig
	logger     *slog.Logger
}

// NewRootCmd builds the wpdebug command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "wpdebug",
		Short: "Toggle WordPress debug constants and read debug.log",
		Long: `wpdebug manages the debug switches in a WordPress wp-config.php and
shows the resulting debug.log, grouped into entries and classified by severity.

Every change to wp-config.php is preceded by a backup; only the newest
backups are kept.

Examples:
  wpdebug status
  wpdebug set --debug --log --display=false
  wpdebug logs --filter fatal,warning --page 2
  wpdebug logs follow`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] != "" {
				a.logger = newLogger(cmd.ErrOrStderr(), slog.LevelInfo, "text")
				return nil
			}
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultFileName, "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newInitCmd(a),
		newStatusCmd(a),
		newSetCmd(a),
		newBackupsCmd(a),
		newLogsCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(stderr, level, cfg.Logging.Format)
	a.logger.Debug("loaded config", "path", a.configPath)
	return nil
}

func (a *app) controller() (*controller.Controller, error) {
	return controller.New(a.cfg, a.logger)
}

// renderer picks the output format: the flag when given, else the config.
func (a *app) renderer(cmd *cobra.Command, format string) (output.Renderer, error) {
	if format == "" {
		format = a.cfg.Viewer.Format
	}
	return output.New(format, cmd.OutOrStdout())
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wpdebug version %s\n", Version)
			fmt.Fprintf(out, "  commit: %s\n", Commit)
			fmt.Fprintf(out, "  built: %s\n", Date)
		},
	}
}
