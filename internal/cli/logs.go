package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wp-debug-viewer/backend/internal/logstore"
	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/parser"
	"github.com/wp-debug-viewer/backend/internal/watcher"
)

// queryFlags are the viewer parameters shared by "logs" and "logs query".
type queryFlags struct {
	filter   string
	search   string
	page     int
	pageSize int
	format   string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.filter, "filter", "", "comma-separated categories to show (fatal, parse, database, warning, deprecated, strict, notice, unknown, all)")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "only entries containing this text (case-insensitive)")
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "entries per page (default from config)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "output format: text, json, msgpack")
}

// query builds the LogQuery. Unknown category names are logged and skipped.
func (f *queryFlags) query(cmd *cobra.Command, logger *slog.Logger) models.LogQuery {
	q := models.LogQuery{Search: f.search, Page: f.page, PageSize: f.pageSize}
	if cmd.Flags().Changed("filter") {
		set, unknown := parser.ParseCategorySet(f.filter)
		for _, u := range unknown {
			logger.Warn("ignoring unknown category", "category", u)
		}
		q.Categories = set
	}
	return q
}

func newLogsCmd(a *app) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show debug.log entries",
		Long: `Show debug.log grouped into entries. Each entry is a timestamped line plus
any stack trace lines that follow it. Entries are classified as fatal,
parse, database, warning, deprecated, strict, notice or unknown.

Examples:
  wpdebug logs
  wpdebug logs --filter fatal,parse --search woocommerce
  wpdebug logs --page 3 --page-size 50 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd, flags.format)
			if err != nil {
				return err
			}
			page, err := ctl.ViewLog(flags.query(cmd, a.logger))
			if err != nil {
				return err
			}
			return r.RenderPage(page)
		},
	}
	flags.register(cmd)

	cmd.AddCommand(
		newLogsClearCmd(a),
		newLogsFollowCmd(a),
		newLogsExportCmd(a),
		newLogsQueryCmd(a),
	)
	return cmd
}

func newLogsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty debug.log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			if err := ctl.ClearLog(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", ctl.LogPath())
			return nil
		},
	}
}

func newLogsFollowCmd(a *app) *cobra.Command {
	var (
		filter string
		tail   int
		format string
	)
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Print new debug.log entries as they are written",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd, format)
			if err != nil {
				return err
			}

			f := &follower{}
			if cmd.Flags().Changed("filter") {
				f.categories, _ = parser.ParseCategorySet(filter)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			emit := func(final bool) {
				entries, err := ctl.Entries()
				if err != nil {
					a.logger.Warn("reading log failed", "error", err)
					return
				}
				for _, e := range f.next(entries, final) {
					if err := r.RenderEntry(e); err != nil {
						a.logger.Warn("render error", "error", err)
					}
				}
			}

			entries, err := ctl.Entries()
			if err != nil {
				return err
			}
			f.skip(entries, tail)
			emit(false)

			fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", ctl.LogPath())
			err = watcher.Follow(ctx, ctl.LogPath(), a.logger, func(watcher.Event) { emit(false) })
			emit(true)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "comma-separated categories to show")
	cmd.Flags().IntVarP(&tail, "tail", "n", 10, "number of existing entries to show first")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json, msgpack")
	return cmd
}

// follower tracks which entries of a growing log have been printed.
// The newest entry is held back until another one follows it, since more
// stack trace lines may still be appended to it.
type follower struct {
	shown      int
	categories models.CategorySet
}

// skip marks all but the last n entries as already shown.
func (f *follower) skip(entries []models.LogEntry, n int) {
	f.shown = max(len(entries)-max(n, 0), 0)
}

// next returns the entries to print after a re-parse. A log with fewer
// entries than already shown was cleared or rotated and is read from the
// start.
func (f *follower) next(entries []models.LogEntry, final bool) []models.LogEntry {
	if len(entries) < f.shown {
		f.shown = 0
	}
	limit := len(entries)
	if !final && limit > 0 {
		limit--
	}
	if limit <= f.shown {
		return nil
	}

	fresh := entries[f.shown:limit]
	f.shown = limit
	if f.categories != nil {
		fresh = parser.Filter(fresh, f.categories)
	}
	return fresh
}

func newLogsExportCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Parse debug.log into a DuckDB file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := a.controller()
			if err != nil {
				return err
			}
			n, err := ctl.ExportLog(dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", n, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB file to create (replaced if present)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newLogsQueryCmd(a *app) *cobra.Command {
	var (
		dbPath string
		flags  queryFlags
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Page through entries exported with \"logs export\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.renderer(cmd, flags.format)
			if err != nil {
				return err
			}

			store, err := logstore.Open(dbPath, a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			q := flags.query(cmd, a.logger)
			if q.PageSize < 1 {
				q.PageSize = a.cfg.Viewer.PageSize
			}
			page, err := store.Page(cmd.Context(), q)
			if err != nil {
				return err
			}
			return r.RenderPage(page)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB file written by \"logs export\"")
	_ = cmd.MarkFlagRequired("db")
	flags.register(cmd)
	return cmd
}
