package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanTables lists the tables of a previous run found under
// <dataDir>/out/tables. Only files with a manifest are returned.
func ScanTables(dataDir string) ([]TableInfo, error) {
	dir := filepath.Join(dataDir, "out", "tables")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ScanTables: reading %s: %w", dir, err)
	}

	var out []TableInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		m, err := ReadManifest(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ScanTables: %w", err)
		}
		rows, err := countRows(path)
		if err != nil {
			return nil, fmt.Errorf("ScanTables: %w", err)
		}
		out = append(out, TableInfo{
			Name:     strings.TrimSuffix(e.Name(), ".csv"),
			Path:     path,
			Rows:     rows,
			Manifest: m,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("countRows: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	n := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("countRows: reading %s: %w", path, err)
		}
		n++
	}
}
