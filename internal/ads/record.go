package ads

import (
	"encoding/json"
	"strconv"
)

// Object returns the nested object stored under key.
func (r Record) Object(key string) (Record, bool) {
	switch v := r[key].(type) {
	case Record:
		return v, true
	case map[string]any:
		return Record(v), true
	}
	return nil, false
}

// Int64 reads an integer field. The backend encodes int64 as a JSON string,
// so both strings and numbers are accepted.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// String reads a string field, returning "" when absent.
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Bool reads a boolean field, returning false when absent.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}
