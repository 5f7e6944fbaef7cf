// Package models contains domain types for the WordPress debug toolkit.
package models

import (
	"sort"
	"strings"
)

// Category classifies a debug.log entry by severity.
type Category string

const (
	CategoryFatal      Category = "Fatal"
	CategoryParse      Category = "Parse"
	CategoryDatabase   Category = "Database"
	CategoryWarning    Category = "Warning"
	CategoryDeprecated Category = "Deprecated"
	CategoryStrict     Category = "Strict"
	CategoryNotice     Category = "Notice"
	CategoryUnknown    Category = "Unknown"
)

// AllCategories lists every category in classification priority order.
var AllCategories = []Category{
	CategoryFatal,
	CategoryParse,
	CategoryDatabase,
	CategoryWarning,
	CategoryDeprecated,
	CategoryStrict,
	CategoryNotice,
	CategoryUnknown,
}

var categoryLabels = map[Category]string{
	CategoryFatal:      "Fatal Errors",
	CategoryParse:      "Parse Errors",
	CategoryDatabase:   "Database Errors",
	CategoryWarning:    "Warnings",
	CategoryDeprecated: "Deprecated",
	CategoryStrict:     "Strict Standards",
	CategoryNotice:     "Notices",
	CategoryUnknown:    "Other",
}

// Slug returns the lower-case filter key, e.g. "fatal".
func (c Category) Slug() string {
	return strings.ToLower(string(c))
}

// Label returns the human readable plural name shown in filter lists.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// CategoryFromSlug resolves a filter key (case-insensitive) to a Category.
func CategoryFromSlug(slug string) (Category, bool) {
	s := strings.ToLower(strings.TrimSpace(slug))
	for _, c := range AllCategories {
		if c.Slug() == s {
			return c, true
		}
	}
	return "", false
}

// CategorySet is a set of active categories.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	set := make(CategorySet, len(cats))
	for _, c := range cats {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether c is in the set.
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members in classification priority order.
func (s CategorySet) Sorted() []Category {
	out := make([]Category, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return categoryRank(out[i]) < categoryRank(out[j])
	})
	return out
}

func categoryRank(c Category) int {
	for i, k := range AllCategories {
		if k == c {
			return i
		}
	}
	return len(AllCategories)
}

// LogEntry represents one logical entry from debug.log, including any
// continuation lines (stack frames) attached to it.
type LogEntry struct {
	Line      int      `json:"line" msgpack:"line"`
	Timestamp string   `json:"timestamp" msgpack:"timestamp"`
	Message   string   `json:"message" msgpack:"message"`
	Category  Category `json:"category" msgpack:"category"`
	Raw       string   `json:"raw" msgpack:"raw"`
}
