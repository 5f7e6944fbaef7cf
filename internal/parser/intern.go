package parser

// MaxInternPoolSize bounds the pool; past it strings are returned as-is.
const MaxInternPoolSize = 100000

// StringIntern deduplicates repeated strings. debug.log repeats the same
// timestamp for every line PHP writes within one second, so a parse keeps
// one copy per distinct value. Not safe for concurrent use.
type StringIntern struct {
	pool map[string]string
}

// NewStringIntern creates a new string interner.
func NewStringIntern() *StringIntern {
	return &StringIntern{pool: make(map[string]string, 256)}
}

// Intern returns the canonical copy of s.
func (si *StringIntern) Intern(s string) string {
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	return len(si.pool)
}
