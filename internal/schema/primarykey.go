package schema

import (
	"fmt"
	"strings"
)

// PrimaryKeyError reports declared primary-key columns missing from a table.
type PrimaryKeyError struct {
	Invalid []string
	Valid   []string
}

func (e *PrimaryKeyError) Error() string {
	return fmt.Sprintf(`Primary keys "%s" are not valid. Expected keys: "%s"`,
		strings.Join(e.Invalid, ", "), strings.Join(e.Valid, ", "))
}

// ValidatePrimaryKeys checks that every declared key is one of columns.
func ValidatePrimaryKeys(columns, primaryKeys []string) error {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}

	var invalid []string
	for _, pk := range primaryKeys {
		if !known[pk] {
			invalid = append(invalid, pk)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return &PrimaryKeyError{Invalid: invalid, Valid: append([]string(nil), columns...)}
}
