package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dvloznov/ads-extractor/internal/schema"
)

// ErrSchemaMismatch is returned when a table is reopened with a column list
// different from the one its rows were written with.
var ErrSchemaMismatch = errors.New("column list differs from rows already written")

// TableInfo describes a table that received rows during the run.
type TableInfo struct {
	Name     string
	Path     string
	Rows     int
	Manifest Manifest
}

type table struct {
	name       string
	path       string
	columns    []string
	primaryKey []string
	file       *os.File
	csv        *csv.Writer
	created    bool
	rows       int
}

// Writer appends rows to per-table CSV files under <dataDir>/out/tables.
// Files carry no header; the column order lives in the manifest written by
// Close. Writer is not safe for concurrent use.
type Writer struct {
	dir    string
	tables map[string]*table
	order  []string
}

// NewWriter prepares the output directory.
func NewWriter(dataDir string) (*Writer, error) {
	dir := filepath.Join(dataDir, "out", "tables")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewWriter: creating %s: %w", dir, err)
	}
	return &Writer{dir: dir, tables: make(map[string]*table)}, nil
}

// Dir is the directory tables are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// TablePath returns the data file of a table.
func (w *Writer) TablePath(name string) string {
	return filepath.Join(w.dir, name+".csv")
}

// Begin starts a segment of rows for a table. The columns must match those of
// any rows already committed to the table.
func (w *Writer) Begin(name string, columns, primaryKey []string) (*Segment, error) {
	t, ok := w.tables[name]
	if !ok {
		t = &table{name: name, path: w.TablePath(name)}
		w.tables[name] = t
		w.order = append(w.order, name)
	}

	if t.rows > 0 && !slices.Equal(t.columns, columns) {
		return nil, fmt.Errorf("Begin: table %s: %w", name, ErrSchemaMismatch)
	}
	t.columns = append([]string(nil), columns...)
	t.primaryKey = append([]string(nil), primaryKey...)

	seg := &Segment{t: t, start: -1}
	if t.file != nil {
		if err := seg.markStart(); err != nil {
			return nil, err
		}
	}
	return seg, nil
}

// Close flushes every table, writes manifests for tables that received rows
// and removes files this run created without committing a row.
func (w *Writer) Close() error {
	var errs []error
	for _, name := range w.order {
		t := w.tables[name]
		if t.file == nil {
			continue
		}
		t.csv.Flush()
		if err := t.csv.Error(); err != nil {
			errs = append(errs, fmt.Errorf("Close: flushing %s: %w", name, err))
		}
		if err := t.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("Close: closing %s: %w", name, err))
		}
		t.file = nil

		if t.rows == 0 {
			if t.created {
				if err := os.Remove(t.path); err != nil {
					errs = append(errs, fmt.Errorf("Close: removing empty %s: %w", name, err))
				}
			}
			continue
		}
		if err := WriteManifest(t.path, t.manifest()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tables lists the tables that received rows, in first-use order.
func (w *Writer) Tables() []TableInfo {
	var out []TableInfo
	for _, name := range w.order {
		t := w.tables[name]
		if t.rows == 0 {
			continue
		}
		out = append(out, TableInfo{Name: name, Path: t.path, Rows: t.rows, Manifest: t.manifest()})
	}
	return out
}

func (t *table) manifest() Manifest {
	return Manifest{Incremental: true, PrimaryKey: t.primaryKey, Columns: t.columns}
}

func (t *table) open() error {
	_, statErr := os.Stat(t.path)
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open table %s: %w", t.path, err)
	}
	t.file = f
	t.csv = csv.NewWriter(f)
	t.created = errors.Is(statErr, os.ErrNotExist)
	return nil
}

// Segment is a run of rows appended to one table that is either committed or
// rolled back as a whole.
type Segment struct {
	t     *table
	start int64
	rows  int
	done  bool
}

func (s *Segment) markStart() error {
	info, err := s.t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat table %s: %w", s.t.path, err)
	}
	s.start = info.Size()
	return nil
}

// Append writes one fully flattened row.
func (s *Segment) Append(row schema.FlatRow) error {
	if s.done {
		return fmt.Errorf("Append: segment of %s already finished", s.t.name)
	}
	if len(row.Values) != len(s.t.columns) {
		return fmt.Errorf("Append: table %s expects %d columns, row has %d", s.t.name, len(s.t.columns), len(row.Values))
	}
	if s.t.file == nil {
		if err := s.t.open(); err != nil {
			return fmt.Errorf("Append: %w", err)
		}
	}
	if s.start < 0 {
		if err := s.markStart(); err != nil {
			return fmt.Errorf("Append: %w", err)
		}
	}
	if err := s.t.csv.Write(row.Strings()); err != nil {
		return fmt.Errorf("Append: writing %s: %w", s.t.name, err)
	}
	s.rows++
	return nil
}

// Rows is the number of rows appended in this segment.
func (s *Segment) Rows() int {
	return s.rows
}

// Commit flushes the segment and counts its rows towards the table.
func (s *Segment) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if s.t.file == nil {
		return nil
	}
	s.t.csv.Flush()
	if err := s.t.csv.Error(); err != nil {
		return fmt.Errorf("Commit: flushing %s: %w", s.t.name, err)
	}
	s.t.rows += s.rows
	return nil
}

// Rollback discards every row of the segment.
func (s *Segment) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	if s.t.file == nil || s.start < 0 {
		return nil
	}
	s.t.csv.Flush()
	if err := s.t.file.Truncate(s.start); err != nil {
		return fmt.Errorf("Rollback: truncating %s: %w", s.t.name, err)
	}
	s.rows = 0
	return nil
}
