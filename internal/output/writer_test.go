package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/ads-extractor/internal/schema"
	"github.com/google/go-cmp/cmp"
)

func row(values ...any) schema.FlatRow {
	names := make([]string, len(values))
	return schema.FlatRow{Names: names, Values: values}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestWriter_CommitWritesRowsAndManifest(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	seg, err := w.Begin("campaign", []string{"customerId", "id", "name"}, []string{"customerId", "id"})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	for _, r := range []schema.FlatRow{row("1", "10", "Brand, EU"), row("1", "11", nil)} {
		if err := seg.Append(r); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := seg.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := w.TablePath("campaign")
	if got, want := readFile(t, path), "1,10,\"Brand, EU\"\n1,11,\n"; got != want {
		t.Errorf("table content = %q, want %q", got, want)
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	want := Manifest{Incremental: true, PrimaryKey: []string{"customerId", "id"}, Columns: []string{"customerId", "id", "name"}}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestWriter_RollbackDiscardsSegment(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	cols := []string{"id"}

	first, _ := w.Begin("report-daily", cols, nil)
	_ = first.Append(row("1"))
	if err := first.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	failed, _ := w.Begin("report-daily", cols, nil)
	_ = failed.Append(row("2"))
	_ = failed.Append(row("3"))
	if err := failed.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	retry, _ := w.Begin("report-daily", cols, nil)
	_ = retry.Append(row("2"))
	_ = retry.Commit()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readFile(t, w.TablePath("report-daily")); got != "1\n2\n" {
		t.Errorf("table content = %q, want %q", got, "1\n2\n")
	}
	if got := w.Tables(); len(got) != 1 || got[0].Rows != 2 {
		t.Errorf("Tables() = %+v, want one table with 2 rows", got)
	}
}

func TestWriter_NoRowsNoFiles(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}

	seg, _ := w.Begin("report-empty", []string{"id"}, []string{"id"})
	_ = seg.Append(row("1"))
	_ = seg.Rollback()

	untouched, _ := w.Begin("customer", []string{"id"}, []string{"id"})
	_ = untouched.Commit()

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, name := range []string{"report-empty", "customer"} {
		path := w.TablePath(name)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s exists, want no file", path)
		}
		if _, err := os.Stat(ManifestPath(path)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s manifest exists, want none", path)
		}
	}
	if len(w.Tables()) != 0 {
		t.Errorf("Tables() = %+v, want none", w.Tables())
	}
}

func TestWriter_AppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "tables", "customer.csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("1,old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	seg, _ := w.Begin("customer", []string{"id", "descriptiveName"}, []string{"id"})
	_ = seg.Append(row("2", "new"))
	_ = seg.Rollback()
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := readFile(t, path); got != "1,old\n" {
		t.Errorf("table content = %q, want previous run's rows untouched", got)
	}
}

func TestWriter_SchemaMismatch(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	seg, _ := w.Begin("report-x", []string{"id", "name"}, nil)
	_ = seg.Append(row("1", "a"))
	_ = seg.Commit()

	if _, err := w.Begin("report-x", []string{"id"}, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Begin() error = %v, want ErrSchemaMismatch", err)
	}

	other, _ := w.Begin("report-x", []string{"id", "name"}, nil)
	if err := other.Append(row("1")); err == nil {
		t.Error("Append() with a short row should fail")
	}
	_ = w.Close()
}

func TestScanTables(t *testing.T) {
	dataDir := t.TempDir()
	w, err := NewWriter(dataDir)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	for _, name := range []string{"report-groups", "campaign"} {
		seg, err := w.Begin(name, []string{"id", "name"}, []string{"id"})
		if err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := seg.Append(row("1", "multi\nline")); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := seg.Append(row("2", "b")); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := seg.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// A stray file without manifest is ignored.
	if err := os.WriteFile(filepath.Join(w.Dir(), "stray.csv"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tables, err := ScanTables(dataDir)
	if err != nil {
		t.Fatalf("ScanTables() error = %v", err)
	}
	var names []string
	for _, ti := range tables {
		names = append(names, ti.Name)
		if ti.Rows != 2 {
			t.Errorf("%s: Rows = %d, want 2", ti.Name, ti.Rows)
		}
		if diff := cmp.Diff([]string{"id"}, ti.Manifest.PrimaryKey); diff != "" {
			t.Errorf("%s: primary key mismatch (-want +got):\n%s", ti.Name, diff)
		}
	}
	if diff := cmp.Diff([]string{"campaign", "report-groups"}, names); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}
