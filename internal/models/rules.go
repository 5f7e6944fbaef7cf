package models

// CategoryRule maps message substrings to a category. Rules are evaluated in
// order and the first rule with a matching pattern wins.
type CategoryRule struct {
	Category Category `json:"category" yaml:"category"`
	Patterns []string `json:"patterns" yaml:"patterns"`
}

// CategoryRules is the YAML document holding an ordered rule list.
type CategoryRules struct {
	Rules []CategoryRule `json:"rules" yaml:"rules"`
}
