// Package logstore indexes parsed debug.log entries in a DuckDB file so
// large logs can be exported once and queried page by page.
package logstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/parser"
)

const (
	defaultBatchSize = 10000
	maxConcurrent    = 3
)

var pragmas = []string{
	"PRAGMA memory_limit='512MB'",
	"PRAGMA threads=2",
	"PRAGMA enable_progress_bar=false",
}

// Store is a DuckDB-backed table of log entries.
type Store struct {
	db        *sql.DB
	path      string
	readOnly  bool
	count     int
	batchSize int
	batch     []models.LogEntry
	logger    *slog.Logger

	countCache   map[string]int
	countCacheMu sync.RWMutex

	querySem chan struct{}
}

// Create makes a fresh database at path, replacing any existing file.
func Create(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "logstore")

	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("removing old database %s: %w", p, err)
		}
	}

	db, err := openDB(path, false, logger)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE entries (
			id       INTEGER PRIMARY KEY,
			line     INTEGER NOT NULL,
			ts       VARCHAR NOT NULL,
			category VARCHAR NOT NULL,
			message  VARCHAR NOT NULL,
			raw      VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	logger.Debug("created database", "path", path)
	return newStore(db, path, false, 0, logger), nil
}

// Open opens an existing database read-only.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "logstore")

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db, err := openDB(path, true, logger)
	if err != nil {
		return nil, err
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("counting entries: %w", err)
	}

	logger.Debug("opened database", "path", path, "entries", count)
	return newStore(db, path, true, count, logger), nil
}

func openDB(path string, readOnly bool, logger *slog.Logger) (*sql.DB, error) {
	dsn := path
	if readOnly {
		dsn += "?access_mode=READ_ONLY"
	}
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn("pragma failed", "pragma", pragma, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func newStore(db *sql.DB, path string, readOnly bool, count int, logger *slog.Logger) *Store {
	return &Store{
		db:         db,
		path:       path,
		readOnly:   readOnly,
		count:      count,
		batchSize:  defaultBatchSize,
		batch:      make([]models.LogEntry, 0, defaultBatchSize),
		logger:     logger,
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, maxConcurrent),
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of entries added or stored.
func (s *Store) Len() int {
	return s.count
}

// AddEntries queues entries for insertion, flushing full batches.
func (s *Store) AddEntries(entries []models.LogEntry) error {
	if s.readOnly {
		return fmt.Errorf("database %s is read-only", s.path)
	}
	for _, e := range entries {
		s.batch = append(s.batch, e)
		s.count++
		if len(s.batch) >= s.batchSize {
			if err := s.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush writes the pending batch through the DuckDB Appender.
func (s *Store) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	start := time.Now()

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}
	defer conn.Close()

	baseID := s.count - len(s.batch)
	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "entries")
		if err != nil {
			return fmt.Errorf("creating appender: %w", err)
		}
		defer appender.Close()

		for i, e := range s.batch {
			err := appender.AppendRow(
				int32(baseID+i),
				int32(e.Line),
				e.Timestamp,
				string(e.Category),
				e.Message,
				e.Raw,
			)
			if err != nil {
				return fmt.Errorf("appending row %d: %w", baseID+i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender: %w", err)
	}

	s.logger.Debug("flushed batch", "entries", len(s.batch), "elapsed", time.Since(start))
	s.batch = s.batch[:0]
	s.clearCountCache()
	return nil
}

// Finalize flushes pending entries and builds the category index.
func (s *Store) Finalize() error {
	if err := s.flush(); err != nil {
		return err
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_category ON entries(category)"); err != nil {
		return fmt.Errorf("creating category index: %w", err)
	}
	s.logger.Info("log index ready", "path", s.path, "entries", s.count)
	return nil
}

// QueryEntries returns one page of entries matching q and the number of
// matching entries. Paging follows parser.Paginate: page is clamped to 1,
// a page size below 1 uses the default, and a page past the end is empty.
func (s *Store) QueryEntries(ctx context.Context, q models.LogQuery) ([]models.LogEntry, int, error) {
	select {
	case s.querySem <- struct{}{}:
		defer func() { <-s.querySem }()
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	if q.Categories != nil && len(q.Categories) == 0 {
		return []models.LogEntry{}, 0, nil
	}

	where, args := buildWhereClause(q)
	total, err := s.countMatching(ctx, where, args)
	if err != nil {
		return nil, 0, err
	}

	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = parser.DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > parser.TotalPages(total, pageSize) {
		return []models.LogEntry{}, total, nil
	}

	query := "SELECT line, ts, category, message, raw FROM entries"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Page runs a query and wraps it the same way parser.Query does, with
// category counts over the whole table.
func (s *Store) Page(ctx context.Context, q models.LogQuery) (*models.LogPage, error) {
	entries, total, err := s.QueryEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	counts, err := s.CategoryCounts(ctx)
	if err != nil {
		return nil, err
	}

	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = parser.DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	result := models.NewLogPage(page, pageSize)
	result.Entries = entries
	result.TotalEntries = total
	result.TotalPages = parser.TotalPages(total, pageSize)
	result.Counts = counts
	return result, nil
}

// CategoryCounts returns the number of entries per category.
func (s *Store) CategoryCounts(ctx context.Context) (map[models.Category]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM entries GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("counting categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int, len(models.AllCategories))
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[models.Category(cat)] = n
	}
	return counts, rows.Err()
}

// Close releases the database. The file is kept.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) countMatching(ctx context.Context, where string, args []any) (int, error) {
	key := where + fmt.Sprint(args...)

	s.countCacheMu.RLock()
	total, found := s.countCache[key]
	s.countCacheMu.RUnlock()
	if found {
		return total, nil
	}

	query := "SELECT COUNT(*) FROM entries"
	if where != "" {
		query += " WHERE " + where
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}

	s.countCacheMu.Lock()
	s.countCache[key] = total
	s.countCacheMu.Unlock()
	return total, nil
}

func (s *Store) clearCountCache() {
	s.countCacheMu.Lock()
	s.countCache = make(map[string]int)
	s.countCacheMu.Unlock()
}

func buildWhereClause(q models.LogQuery) (string, []any) {
	var clauses []string
	var args []any

	if q.Categories != nil {
		cats := q.Categories.Sorted()
		marks := make([]string, len(cats))
		for i, c := range cats {
			marks[i] = "?"
			args = append(args, string(c))
		}
		clauses = append(clauses, "category IN ("+strings.Join(marks, ", ")+")")
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		clauses = append(clauses, `raw ILIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}

	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanEntries(rows *sql.Rows, capacity int) ([]models.LogEntry, error) {
	entries := make([]models.LogEntry, 0, capacity)
	for rows.Next() {
		var e models.LogEntry
		var cat string
		if err := rows.Scan(&e.Line, &e.Timestamp, &cat, &e.Message, &e.Raw); err != nil {
			return nil, err
		}
		e.Category = models.Category(cat)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
