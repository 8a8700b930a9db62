package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dvloznov/ads-extractor/internal/ads"
)

// denylist holds structural fields that never become columns in static mode.
var denylist = map[string]bool{
	"resourceName": true,
}

// FlatRow is one output row. Names is shared with the schema it was built
// from; Values is aligned with it.
type FlatRow struct {
	Names  []string
	Values []any
}

// Get returns the value of a column.
func (r FlatRow) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Strings renders the row for CSV output.
func (r FlatRow) Strings() []string {
	out := make([]string, len(r.Values))
	for i, v := range r.Values {
		out[i] = formatValue(v)
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case ads.CustomerID:
		return val.String()
	}
	s, err := encodeJSON(v)
	if err != nil {
		return ""
	}
	return s
}

// Flatten converts a record into a row holding exactly the schema's columns.
func (s ColumnSchema) Flatten(rec ads.Record) FlatRow {
	base := rec
	if s.Resource != "" {
		base, _ = rec.Object(s.Resource)
	}

	var legacy map[string]any
	if s.Mode == ModeStatic {
		legacy = flattenOneLevel(base)
	}

	row := FlatRow{Names: s.Names(), Values: make([]any, len(s.Columns))}
	for i, col := range s.Columns {
		switch {
		case col.Constant:
			row.Values[i] = col.Value
		case s.Mode == ModeStatic:
			row.Values[i] = legacy[col.Path]
		default:
			row.Values[i] = resolvePath(base, col.Path)
		}
	}
	return row
}

// resolvePath walks a dotted path. Any missing segment yields nil.
func resolvePath(rec map[string]any, path string) any {
	var cur any = rec
	for _, key := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil
		}
		cur, ok = obj[key]
		if !ok {
			return nil
		}
	}
	return leafValue(cur)
}

// flattenOneLevel expands top-level objects into parentChild keys. Anything
// nested deeper is kept as a JSON string.
func flattenOneLevel(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for key, v := range rec {
		if denylist[key] {
			continue
		}
		child, ok := asObject(v)
		if !ok {
			out[key] = leafValue(v)
			continue
		}
		for ck, cv := range child {
			if denylist[ck] {
				continue
			}
			out[key+upperFirst(ck)] = leafValue(cv)
		}
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case ads.Record:
		return o, true
	}
	return nil, false
}

// leafValue re-encodes structured values as JSON and passes scalars through.
func leafValue(v any) any {
	switch v.(type) {
	case map[string]any, ads.Record, []any:
		s, err := encodeJSON(v)
		if err != nil {
			return nil
		}
		return s
	}
	return v
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
