// Package seed loads fixture CSV exports into the legacy and identity tables.
//
// Each file carries a header row; recognized columns are id, email, phone,
// gdpr_consent and create_date. Rows are upserted by id, so loading the same
// directory twice leaves the tables unchanged.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"consentsync/internal/logging"
	"consentsync/internal/model"
	"consentsync/internal/normalize"
	"consentsync/internal/schema"
)

// Fixture file names.
const (
	ClientsFile       = "clients_csv.csv"
	SubscribersFile   = "subscribers_csv.csv"
	SubscriberSMSFile = "subscribersms_csv.csv"
	UsersFile         = "users_csv.csv"
)

// Files lists the fixture files in load order.
var Files = []string{ClientsFile, SubscribersFile, SubscriberSMSFile, UsersFile}

// Upserter is the storage surface the loader writes through.
type Upserter interface {
	UpsertEmailSubscriptions(ctx context.Context, table schema.Handle, subs []model.EmailSubscription) (int, error)
	UpsertPhoneSubscriptions(ctx context.Context, table schema.Handle, subs []model.PhoneSubscription) (int, error)
	UpsertCustomers(ctx context.Context, table schema.Handle, customers []model.CustomerRecord) (int, error)
	UpsertIdentities(ctx context.Context, table schema.Handle, identities []model.Identity) (int, error)
}

// FileResult reports the rows loaded from one file.
type FileResult struct {
	File   string `json:"file"`
	Entity string `json:"entity"`
	Rows   int    `json:"rows"`
}

// Loader upserts fixture files into resolved tables.
type Loader struct {
	store  Upserter
	tables schema.Tables
	logger *slog.Logger
}

// NewLoader constructs a Loader.
func NewLoader(store Upserter, tables schema.Tables, logger *slog.Logger) *Loader {
	return &Loader{store: store, tables: tables, logger: logging.NewComponentLogger(logger, "seed")}
}

// Load reads every fixture file from dir. All files must exist; nothing is
// written when one is missing.
func (l *Loader) Load(ctx context.Context, dir string) ([]FileResult, error) {
	for _, name := range Files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("seed file %s: %w", name, err)
		}
	}

	results := make([]FileResult, 0, len(Files))
	load := func(name, entity string, fn func([]record) (int, error)) error {
		records, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		n, err := fn(records)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		results = append(results, FileResult{File: name, Entity: entity, Rows: n})
		l.logger.Info("seed file loaded", logging.String("file", name), logging.String("entity", entity), logging.Int("rows", n))
		return nil
	}

	err := load(ClientsFile, model.NameCustomer, func(records []record) (int, error) {
		rows := make([]model.CustomerRecord, 0, len(records))
		for _, r := range records {
			created, err := r.timestamp()
			if err != nil {
				return 0, err
			}
			rows = append(rows, model.CustomerRecord{ID: r.id, Email: r.get("email"), Phone: r.get("phone"), CreatedAt: created})
		}
		return l.store.UpsertCustomers(ctx, l.tables.Customers, rows)
	})
	if err != nil {
		return results, err
	}

	err = load(SubscribersFile, model.NameEmailSubscription, func(records []record) (int, error) {
		rows := make([]model.EmailSubscription, 0, len(records))
		for _, r := range records {
			created, err := r.timestamp()
			if err != nil {
				return 0, err
			}
			email := r.get("email")
			if email == "" {
				return 0, fmt.Errorf("line %d: email is required", r.line)
			}
			rows = append(rows, model.EmailSubscription{ID: r.id, Email: email, Consent: r.consent(), CreatedAt: created})
		}
		return l.store.UpsertEmailSubscriptions(ctx, l.tables.EmailSubscriptions, rows)
	})
	if err != nil {
		return results, err
	}

	err = load(SubscriberSMSFile, model.NamePhoneSubscription, func(records []record) (int, error) {
		rows := make([]model.PhoneSubscription, 0, len(records))
		for _, r := range records {
			created, err := r.timestamp()
			if err != nil {
				return 0, err
			}
			phone := r.get("phone")
			if phone == "" {
				return 0, fmt.Errorf("line %d: phone is required", r.line)
			}
			rows = append(rows, model.PhoneSubscription{ID: r.id, Phone: phone, Consent: r.consent(), CreatedAt: created})
		}
		return l.store.UpsertPhoneSubscriptions(ctx, l.tables.PhoneSubscriptions, rows)
	})
	if err != nil {
		return results, err
	}

	err = load(UsersFile, model.NameIdentity, func(records []record) (int, error) {
		rows := make([]model.Identity, 0, len(records))
		for _, r := range records {
			created, err := r.timestamp()
			if err != nil {
				return 0, err
			}
			rows = append(rows, model.Identity{ID: r.id, Email: r.get("email"), Phone: r.get("phone"), Consent: r.consent(), CreatedAt: created})
		}
		return l.store.UpsertIdentities(ctx, l.tables.Identities, rows)
	})
	return results, err
}

type record struct {
	line   int
	id     int64
	fields map[string]string
}

func (r record) get(column string) string {
	return strings.TrimSpace(r.fields[column])
}

func (r record) consent() bool {
	return strings.EqualFold(r.get("gdpr_consent"), "true")
}

func (r record) timestamp() (time.Time, error) {
	ts, err := normalize.Timestamp(r.get("create_date"))
	if err != nil {
		return time.Time{}, fmt.Errorf("line %d: create_date: %w", r.line, err)
	}
	return ts, nil
}

func readFile(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return parse(f, filepath.Base(path))
}

func parse(r io.Reader, name string) ([]record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header", name)
		}
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	var records []record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		fields := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(row) {
				fields[column] = row[i]
			}
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fields["id"]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid id %q", name, line, fields["id"])
		}
		records = append(records, record{line: line, id: id, fields: fields})
	}
	return records, nil
}
