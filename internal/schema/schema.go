package schema

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mode selects how a ColumnSchema was built and therefore how records are
// flattened against it.
type Mode int

const (
	// ModeStatic is a hand-declared column list for a known table. Records are
	// flattened one level deep before columns are picked.
	ModeStatic Mode = iota + 1
	// ModeDynamic is derived from a result's field mask. Every column path is
	// walked to its leaf.
	ModeDynamic
)

func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeDynamic:
		return "dynamic"
	}
	return "unknown"
}

// Column maps a field path inside a record onto an output column name.
// Constant columns ignore the record and always carry Value.
type Column struct {
	Path     string
	Name     string
	Constant bool
	Value    any
}

// ColumnSchema is the ordered column list of one output table.
type ColumnSchema struct {
	Mode Mode
	// Resource, when set, scopes every path to the record's object under
	// that key (the field mask's leading qualifier).
	Resource string
	Columns  []Column
}

// StaticSchema declares a fixed column list read from the resource object.
func StaticSchema(resource string, columns ...Column) ColumnSchema {
	return ColumnSchema{Mode: ModeStatic, Resource: resource, Columns: columns}
}

// Field declares a static column whose name equals its flattened key.
func Field(name string) Column {
	return Column{Path: name, Name: name}
}

// DynamicSchema derives columns from a field mask. Paths may be snake_case or
// lowerCamel; both produce the same columns. Every path is resolved from the
// top of the record, so one mask may mix resources (campaign, metrics,
// segments).
func DynamicSchema(fieldMask []string) ColumnSchema {
	s := ColumnSchema{Mode: ModeDynamic}
	for _, raw := range fieldMask {
		path := strings.TrimSpace(raw)
		s.Columns = append(s.Columns, Column{
			Path: ColumnKey(path),
			Name: ColumnName(path),
		})
	}
	return s
}

// WithConstant returns a copy of s with a leading column holding value on
// every row.
func (s ColumnSchema) WithConstant(name string, value any) ColumnSchema {
	cols := make([]Column, 0, len(s.Columns)+1)
	cols = append(cols, Column{Name: name, Constant: true, Value: value})
	cols = append(cols, s.Columns...)
	s.Columns = cols
	return s
}

// Names returns the output column names in write order.
func (s ColumnSchema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnKey converts a field path into the key path of the record's JSON form:
// every segment is camel-cased, dots are kept.
//
//	campaign.start_date -> campaign.startDate
func ColumnKey(path string) string {
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		segments[i] = camelSegment(seg)
	}
	return strings.Join(segments, ".")
}

// ColumnName converts a field path into a flat output column name.
//
//	campaign.start_date -> campaignStartDate
func ColumnName(path string) string {
	var b strings.Builder
	for i, seg := range strings.Split(path, ".") {
		seg = camelSegment(seg)
		if i > 0 {
			seg = upperFirst(seg)
		}
		b.WriteString(seg)
	}
	return b.String()
}

func camelSegment(seg string) string {
	parts := strings.Split(seg, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(lowerFirst(p))
			continue
		}
		b.WriteString(upperFirst(p))
	}
	return b.String()
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
