package parser

import (
	"strings"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// DefaultPageSize is used when a page size below 1 is requested.
const DefaultPageSize = 100

const stackTraceMarker = "Stack trace:"

// SplitMessage separates an entry message into the error text and the
// stack trace, split at the first "Stack trace:". The trace keeps the
// marker; it is empty when the message has none.
func SplitMessage(message string) (errText, stackTrace string) {
	i := strings.Index(message, stackTraceMarker)
	if i < 0 {
		return message, ""
	}
	return message[:i], message[i:]
}

// Filter keeps entries whose category is in active, preserving order.
func Filter(entries []models.LogEntry, active models.CategorySet) []models.LogEntry {
	out := make([]models.LogEntry, 0, len(entries))
	if len(active) == 0 {
		return out
	}
	for _, e := range entries {
		if active.Has(e.Category) {
			out = append(out, e)
		}
	}
	return out
}

// Search keeps entries whose full text contains term, ignoring case. An
// empty term keeps everything.
func Search(entries []models.LogEntry, term string) []models.LogEntry {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return entries
	}
	out := make([]models.LogEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Raw), term) {
			out = append(out, e)
		}
	}
	return out
}

// ParseCategorySet parses a comma-separated list of category slugs such as
// "fatal,notice". "all" selects every category. Unrecognized slugs are
// returned separately.
func ParseCategorySet(list string) (models.CategorySet, []string) {
	set := models.NewCategorySet()
	var unknown []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "all") {
			for _, c := range models.AllCategories {
				set[c] = struct{}{}
			}
			continue
		}
		c, ok := models.CategoryFromSlug(part)
		if !ok {
			unknown = append(unknown, part)
			continue
		}
		set[c] = struct{}{}
	}
	return set, unknown
}

// TotalPages returns ceil(count / pageSize), or 0 for no entries.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if count <= 0 {
		return 0
	}
	return (count + pageSize - 1) / pageSize
}

// Paginate returns the requested page and the total page count. page is
// clamped to at least 1; a page past the end yields an empty slice.
func Paginate(entries []models.LogEntry, pageSize, page int) ([]models.LogEntry, int) {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	total := TotalPages(len(entries), pageSize)
	if page > total {
		return []models.LogEntry{}, total
	}
	offset := (page - 1) * pageSize
	end := offset + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], total
}

// Count tallies entries per category.
func Count(entries []models.LogEntry) map[models.Category]int {
	counts := make(map[models.Category]int, len(models.AllCategories))
	for _, e := range entries {
		counts[e.Category]++
	}
	return counts
}

// Query runs the viewer pipeline over entries: category counts over the
// whole log, then category filter, search and paging.
func Query(entries []models.LogEntry, q models.LogQuery) *models.LogPage {
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	result := models.NewLogPage(page, pageSize)
	result.Counts = Count(entries)

	selected := entries
	if q.Categories != nil {
		selected = Filter(selected, q.Categories)
	}
	selected = Search(selected, q.Search)

	result.TotalEntries = len(selected)
	result.Entries, result.TotalPages = Paginate(selected, pageSize, page)
	return result
}
