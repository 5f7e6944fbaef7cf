package parser

import (
	"fmt"
	"strings"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// DefaultCategoryRules returns the stock PHP error classification, in
// priority order.
func DefaultCategoryRules() []models.CategoryRule {
	return []models.CategoryRule{
		{Category: models.CategoryFatal, Patterns: []string{"Fatal error", "E_ERROR"}},
		{Category: models.CategoryParse, Patterns: []string{"Parse error", "E_PARSE"}},
		{Category: models.CategoryDatabase, Patterns: []string{"Database error", "MySQL"}},
		{Category: models.CategoryWarning, Patterns: []string{"Warning", "E_WARNING"}},
		{Category: models.CategoryDeprecated, Patterns: []string{"Deprecated", "E_DEPRECATED"}},
		{Category: models.CategoryStrict, Patterns: []string{"Strict Standards", "E_STRICT"}},
		{Category: models.CategoryNotice, Patterns: []string{"Notice", "E_NOTICE"}},
	}
}

type compiledRule struct {
	category models.Category
	patterns []string
}

// Classifier assigns a category to a log message. The first rule with a
// pattern contained in the message wins; matching ignores case.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier validates rules and prepares them for matching.
func NewClassifier(rules []models.CategoryRule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		cr := compiledRule{category: r.Category}
		for _, p := range r.Patterns {
			if p == "" {
				return nil, fmt.Errorf("rule %d (%s): empty pattern", i, r.Category)
			}
			cr.patterns = append(cr.patterns, strings.ToLower(p))
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

var defaultClassifier = mustClassifier(DefaultCategoryRules())

func mustClassifier(rules []models.CategoryRule) *Classifier {
	c, err := NewClassifier(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultClassifier returns the classifier built from DefaultCategoryRules.
func DefaultClassifier() *Classifier {
	return defaultClassifier
}

// Classify returns the category for message, or Unknown.
func (c *Classifier) Classify(message string) models.Category {
	lower := strings.ToLower(message)
	for _, r := range c.rules {
		for _, p := range r.patterns {
			if strings.Contains(lower, p) {
				return r.category
			}
		}
	}
	return models.CategoryUnknown
}
