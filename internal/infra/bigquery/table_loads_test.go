package bigquery

import (
	"testing"

	"cloud.google.com/go/bigquery"
)

func TestTableName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customer", "customer"},
		{"report-ad-groups", "report_ad_groups"},
		{"report-my report.v2", "report_my_report_v2"},
	}
	for _, tt := range tests {
		if got := TableName(tt.in); got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStringSchema(t *testing.T) {
	schema := stringSchema([]string{"customerId", "id"})
	if len(schema) != 2 {
		t.Fatalf("got %d fields, want 2", len(schema))
	}
	for i, name := range []string{"customerId", "id"} {
		if schema[i].Name != name || schema[i].Type != bigquery.StringFieldType || schema[i].Required {
			t.Errorf("field %d = %+v", i, schema[i])
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL("ads", "campaign", []string{"customerId", "id"})
	want := "CREATE TABLE IF NOT EXISTS `ads.campaign` (`customerId` STRING, `id` STRING)"
	if got != want {
		t.Errorf("createTableSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestMergeSQL(t *testing.T) {
	tests := []struct {
		name       string
		columns    []string
		primaryKey []string
		want       string
	}{
		{
			name:       "merge on composite key",
			columns:    []string{"customerId", "id", "name"},
			primaryKey: []string{"customerId", "id"},
			want: "MERGE `ads.campaign` T USING `ads.campaign__staging_r1` S ON T.`customerId` = S.`customerId` AND T.`id` = S.`id`" +
				" WHEN MATCHED THEN UPDATE SET `name` = S.`name`" +
				" WHEN NOT MATCHED THEN INSERT (`customerId`, `id`, `name`) VALUES (S.`customerId`, S.`id`, S.`name`)",
		},
		{
			name:       "key covers every column",
			columns:    []string{"id"},
			primaryKey: []string{"id"},
			want: "MERGE `ads.campaign` T USING `ads.campaign__staging_r1` S ON T.`id` = S.`id`" +
				" WHEN NOT MATCHED THEN INSERT (`id`) VALUES (S.`id`)",
		},
		{
			name:    "append without key",
			columns: []string{"id", "name"},
			want:    "INSERT INTO `ads.campaign` (`id`, `name`) SELECT `id`, `name` FROM `ads.campaign__staging_r1`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeSQL("ads", "campaign", "campaign__staging_r1", tt.columns, tt.primaryKey)
			if got != tt.want {
				t.Errorf("mergeSQL() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}
