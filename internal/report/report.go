// Package report appends review rows to named CSV sinks.
//
// A sink is created with its header on first use and appended to on every
// later run, so repeated runs accumulate rows instead of overwriting them.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Sink names and their columns.
const (
	NonUniqueClientPhones  = "non_unique_client_phones"
	SubscriberConflicts    = "subscriber_conflicts"
	SubscriberSMSConflicts = "subscribersms_conflicts"
)

// Columns lists the header of every known sink.
var Columns = map[string][]string{
	NonUniqueClientPhones:  {"client_id", "phone", "email"},
	SubscriberConflicts:    {"subscriber_id", "subscriber_email", "client_phone", "client_email"},
	SubscriberSMSConflicts: {"subscribersms_id", "subscribersms_phone", "client_phone", "client_email"},
}

// Writer is the append-only surface the reconciliation engine reports through.
type Writer interface {
	Ensure(name string, columns []string) error
	Append(name string, row []string) error
}

// Sink writes each named report to <dir>/<name>.csv.
type Sink struct {
	dir string

	mu      sync.Mutex
	columns map[string][]string
	counts  map[string]int
}

// NewSink returns a sink rooted at dir. The directory is created on demand.
func NewSink(dir string) *Sink {
	return &Sink{
		dir:     dir,
		columns: make(map[string][]string),
		counts:  make(map[string]int),
	}
}

// Path returns the file backing a named sink.
func (s *Sink) Path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Ensure registers a sink and creates its file with a header when absent.
// An existing file is left untouched.
func (s *Sink) Ensure(name string, columns []string) error {
	if name == "" || len(columns) == 0 {
		return errors.New("report sink requires a name and columns")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.columns[name]; ok {
		if !slices.Equal(existing, columns) {
			return fmt.Errorf("report sink %s already registered with columns %v", name, existing)
		}
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	path := s.Path(name)
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() > 0:
	case err == nil || errors.Is(err, os.ErrNotExist):
		if err := writeRecord(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, columns); err != nil {
			return fmt.Errorf("create report %s: %w", name, err)
		}
	default:
		return fmt.Errorf("stat report %s: %w", name, err)
	}

	s.columns[name] = slices.Clone(columns)
	return nil
}

// Append writes one row to a sink. Sinks registered through Columns are
// ensured implicitly; any other name must be ensured first.
func (s *Sink) Append(name string, row []string) error {
	s.mu.Lock()
	columns, ok := s.columns[name]
	s.mu.Unlock()
	if !ok {
		known, isKnown := Columns[name]
		if !isKnown {
			return fmt.Errorf("report sink %s is not registered", name)
		}
		if err := s.Ensure(name, known); err != nil {
			return err
		}
		columns = known
	}
	if len(row) != len(columns) {
		return fmt.Errorf("report %s: row has %d fields, want %d", name, len(row), len(columns))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeRecord(s.Path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, row); err != nil {
		return fmt.Errorf("append report %s: %w", name, err)
	}
	s.counts[name]++
	return nil
}

// Counts returns how many rows each sink received through this Sink.
func (s *Sink) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// EnsureAll creates every known sink.
func EnsureAll(w Writer) error {
	for _, name := range []string{NonUniqueClientPhones, SubscriberConflicts, SubscriberSMSConflicts} {
		if err := w.Ensure(name, Columns[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(path string, flag int, record []string) (err error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return encode(f, record)
}

func encode(w io.Writer, record []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
