package testsupport

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ReadCSV returns every record of the CSV file at path, header included.
func ReadCSV(t testing.TB, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

// WriteCSV writes a header and rows to dir/name, creating dir as needed.
func WriteCSV(t testing.TB, dir, name string, header []string, rows ...[]string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(header); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("encode rows: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", target, err)
	}
	return target
}
