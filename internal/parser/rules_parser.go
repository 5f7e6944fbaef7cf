package parser

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// ParseCategoryRules reads a YAML rules file:
//
//	rules:
//	  - category: Fatal
//	    patterns: ["Fatal error", "E_ERROR"]
func ParseCategoryRules(filePath string) (*models.CategoryRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseCategoryRulesFromReader(file)
}

// ParseCategoryRulesFromReader parses rules from an io.Reader.
func ParseCategoryRulesFromReader(r io.Reader) (*models.CategoryRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules models.CategoryRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing category rules: %w", err)
	}
	if len(rules.Rules) == 0 {
		return nil, fmt.Errorf("category rules file has no rules")
	}

	return &rules, nil
}
