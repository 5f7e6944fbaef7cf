package models

// LogQuery carries the viewer's filter and paging parameters.
type LogQuery struct {
	// Categories limits results to these categories. A nil set applies no
	// category filter; an empty non-nil set matches nothing.
	Categories CategorySet
	Search     string
	Page       int
	PageSize   int
}

// LogPage represents one page of filtered log entries.
type LogPage struct {
	Entries      []LogEntry       `json:"entries" msgpack:"entries"`
	Page         int              `json:"page" msgpack:"page"`
	PageSize     int              `json:"pageSize" msgpack:"pageSize"`
	TotalPages   int              `json:"totalPages" msgpack:"totalPages"`
	TotalEntries int              `json:"totalEntries" msgpack:"totalEntries"`
	Counts       map[Category]int `json:"counts,omitempty" msgpack:"counts,omitempty"`
}

// NewLogPage creates an empty page.
func NewLogPage(page, pageSize int) *LogPage {
	return &LogPage{
		Entries:  make([]LogEntry, 0),
		Page:     page,
		PageSize: pageSize,
		Counts:   make(map[Category]int),
	}
}
