package store

import (
	"time"
)

// Field accessors tolerant of both native Go values (memory store) and
// JSON-decoded values (postgres store), where numbers arrive as float64 and
// instants as RFC 3339 strings.

// String reads a string field; missing or mistyped fields yield "".
func (f Fields) String(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

// Int reads an integer field.
func (f Fields) Int(key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// IntPtr reads an optional integer field, nil when absent or null.
func (f Fields) IntPtr(key string) *int {
	if _, ok := f[key]; !ok {
		return nil
	}
	if f[key] == nil {
		return nil
	}
	n := f.Int(key)
	return &n
}

// Bool reads a boolean field.
func (f Fields) Bool(key string) bool {
	if v, ok := f[key].(bool); ok {
		return v
	}
	return false
}

// Time reads an instant field, nil when absent, null or unparseable.
func (f Fields) Time(key string) *time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return &t
		}
	}
	return nil
}

// Strings reads a list-of-strings field.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy so callers can mutate query results safely.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// equalValue compares a stored value against a query value across the type
// skew introduced by JSON round-trips.
func equalValue(stored, queried any) bool {
	if stored == queried {
		return true
	}
	switch q := queried.(type) {
	case int:
		return numeric(stored) == float64(q)
	case int64:
		return numeric(stored) == float64(q)
	case float64:
		return numeric(stored) == q
	case string:
		s, ok := stored.(string)
		return ok && s == q
	}
	return false
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return -1 << 62
}

// EqualValue is the exported comparison used by store implementations for
// QueryEquals semantics.
func EqualValue(stored, queried any) bool {
	return equalValue(stored, queried)
}
