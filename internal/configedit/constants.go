package configedit

import (
	"regexp"
	"strings"
	"sync"
)

// Definition is a located define() call for one constant.
type Definition struct {
	Name string
	// Literal is the value expression as written, e.g. "true" or "getenv('X')".
	Literal string
	// Boolean reports whether Literal is a true/false literal (any case).
	Boolean bool
	Value   bool
	// ValueStart and ValueEnd delimit Literal within the scanned text.
	ValueStart int
	ValueEnd   int
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// definePrefix matches define('NAME', with either quote style and any
// whitespace, up to the start of the value.
func definePrefix(name string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()

	if re, ok := patternCache[name]; ok {
		return re
	}
	re := regexp.MustCompile(`define\s*\(\s*['"]` + regexp.QuoteMeta(name) + `['"]\s*,\s*`)
	patternCache[name] = re
	return re
}

// FindConstant locates the first definition of name in text. A define()
// whose value cannot be delimited is reported as not found.
func FindConstant(text, name string) (Definition, bool) {
	d, ok, _ := findConstant(text, name)
	return d, ok
}

// findConstant is FindConstant that also reports, as its last result, a
// define() for name whose value could not be delimited.
func findConstant(text, name string) (Definition, bool, bool) {
	loc := definePrefix(name).FindStringIndex(text)
	if loc == nil {
		return Definition{}, false, false
	}
	end, ok := valueEnd(text, loc[1])
	if !ok {
		return Definition{}, false, true
	}
	literalEnd := loc[1] + len(strings.TrimRight(text[loc[1]:end], " \t\r\n"))

	d := Definition{
		Name:       name,
		Literal:    text[loc[1]:literalEnd],
		ValueStart: loc[1],
		ValueEnd:   literalEnd,
	}
	switch {
	case strings.EqualFold(d.Literal, "true"):
		d.Boolean, d.Value = true, true
	case strings.EqualFold(d.Literal, "false"):
		d.Boolean = true
	}
	return d, true, false
}

// valueEnd scans a define() value starting at start and returns the offset
// of the closing parenthesis of the call. Nested calls and quoted strings
// are skipped. A statement end or a third argument before the closing
// parenthesis means the value cannot be delimited.
func valueEnd(text string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(text); i++ {
		switch c := text[i]; c {
		case '\'', '"':
			j := closingQuote(text, i)
			if j < 0 {
				return 0, false
			}
			i = j
		case '(', '[':
			depth++
		case ')', ']':
			if depth == 0 {
				if c == ']' || i == start {
					return 0, false
				}
				return i, true
			}
			depth--
		case ';':
			return 0, false
		case ',':
			if depth == 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

// closingQuote returns the offset of the quote closing the string opened at
// open, honoring backslash escapes, or -1.
func closingQuote(text string, open int) int {
	q := text[open]
	for i := open + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

// ReadConstants returns the boolean value of each named constant that is
// defined in text with a true/false literal. Absent or non-boolean
// definitions are omitted.
func ReadConstants(text string, names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		name = NormalizeName(name)
		if d, ok := FindConstant(text, name); ok && d.Boolean {
			out[name] = d.Value
		}
	}
	return out
}

// NormalizeName upper-cases a constant name and trims surrounding space.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func literal(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func defineLine(name string, v bool) string {
	return "define('" + name + "', " + literal(v) + ");"
}
