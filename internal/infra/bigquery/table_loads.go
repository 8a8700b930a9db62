package bigquery

import (
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/bigquery"
)

// TableLoad describes one extracted CSV file to load into BigQuery.
type TableLoad struct {
	// Name is the extracted table name, e.g. report-groups.
	Name string
	// URI is the gs:// location of the CSV file.
	URI        string
	Columns    []string
	PrimaryKey []string
}

// LoadResult reports what a load did to the target table.
type LoadResult struct {
	Table string
	Rows  int64
}

var invalidTableChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableName maps an extracted table name onto a BigQuery table id.
func TableName(name string) string {
	return invalidTableChars.ReplaceAllString(name, "_")
}

// stringSchema declares every column as a nullable STRING. Values are loaded
// exactly as they were written to the CSV file.
func stringSchema(columns []string) bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(columns))
	for _, c := range columns {
		schema = append(schema, &bigquery.FieldSchema{Name: c, Type: bigquery.StringFieldType})
	}
	return schema
}

func quoteColumns(columns []string, prefix string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = prefix + "`" + c + "`"
	}
	return out
}

func createTableSQL(dataset, table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = "`" + c + "` STRING"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s.%s` (%s)", dataset, table, strings.Join(defs, ", "))
}

// mergeSQL upserts the staging rows into the target by primary key. Without a
// key the rows are appended.
func mergeSQL(dataset, target, staging string, columns, primaryKey []string) string {
	cols := strings.Join(quoteColumns(columns, ""), ", ")
	if len(primaryKey) == 0 {
		return fmt.Sprintf("INSERT INTO `%s.%s` (%s) SELECT %s FROM `%s.%s`",
			dataset, target, cols, cols, dataset, staging)
	}

	on := make([]string, len(primaryKey))
	for i, k := range primaryKey {
		on[i] = fmt.Sprintf("T.`%s` = S.`%s`", k, k)
	}

	isKey := make(map[string]bool, len(primaryKey))
	for _, k := range primaryKey {
		isKey[k] = true
	}
	var set []string
	for _, c := range columns {
		if !isKey[c] {
			set = append(set, fmt.Sprintf("`%s` = S.`%s`", c, c))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE `%s.%s` T USING `%s.%s` S ON %s", dataset, target, dataset, staging, strings.Join(on, " AND "))
	if len(set) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(set, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)", cols, strings.Join(quoteColumns(columns, "S."), ", "))
	return b.String()
}
