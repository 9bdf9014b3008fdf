package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
)

const (
	usersFileName       = "users.csv"
	revocationsFileName = "revoked.csv"
)

// FileBackend stores credential records as delimited text under a single
// directory, typically the base of a mounted object-store bucket. The
// users file holds one record per row; the revocations file holds one
// cutoff per owner. Writes go through a temp file and rename, so readers
// never observe a partial record set.
type FileBackend struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a file backend rooted at config["path"].
func NewFileBackend(config map[string]string, log logger.Logger) (Backend, error) {
	path, ok := config["path"]
	if !ok || path == "" {
		return nil, fmt.Errorf("'path' must be set")
	}
	return &FileBackend{
		path: path,
		log:  log.WithComponent("storage.file"),
	}, nil
}

func (b *FileBackend) usersFile() string {
	return filepath.Join(b.path, usersFileName)
}

func (b *FileBackend) revocationsFile() string {
	return filepath.Join(b.path, revocationsFileName)
}

// readRows reads all rows of a delimited file. A missing file is an empty
// store, not an error.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &UnavailableError{Op: "read " + filepath.Base(path), Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &UnavailableError{Op: "parse " + filepath.Base(path), Err: err, Malformed: true}
	}
	return rows, nil
}

func (b *FileBackend) FetchAll(ctx context.Context) ([]cred.Record, error) {
	rows, err := readRows(b.usersFile())
	if err != nil {
		return nil, err
	}

	var records []cred.Record
	var parseErrs *multierror.Error
	for i, row := range rows {
		row = strutil.TrimStrings(row)
		rec, err := parseRecordRow(row)
		if err != nil {
			parseErrs = multierror.Append(parseErrs, fmt.Errorf("row %d: %w", i+1, err))
			continue
		}
		records = append(records, rec)
	}

	// A row with the wrong shape is a store-integrity failure, never
	// something to skip silently.
	if err := parseErrs.ErrorOrNil(); err != nil {
		return nil, &UnavailableError{Op: "parse " + usersFileName, Err: err, Malformed: true}
	}
	return records, nil
}

// parseRecordRow parses one users file row. The current format is four
// columns (token, owner, issued_at, status); two-column rows from the
// legacy format are read as active records with no issuance time.
func parseRecordRow(row []string) (cred.Record, error) {
	switch len(row) {
	case 2:
		return cred.Record{Token: row[0], Owner: row[1], Status: cred.StatusActive}, nil
	case 4:
		issuedAt, err := time.Parse(time.RFC3339, row[2])
		if err != nil {
			return cred.Record{}, fmt.Errorf("bad issued_at %q: %w", row[2], err)
		}
		status := cred.Status(row[3])
		if status != cred.StatusActive && status != cred.StatusRevoked {
			return cred.Record{}, fmt.Errorf("bad status %q", row[3])
		}
		return cred.Record{Token: row[0], Owner: row[1], IssuedAt: issuedAt, Status: status}, nil
	default:
		return cred.Record{}, fmt.Errorf("expected 2 or 4 columns, got %d", len(row))
	}
}

func (b *FileBackend) AppendOrUpdate(ctx context.Context, rec cred.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.FetchAll(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].Token == rec.Token {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Token,
			r.Owner,
			r.IssuedAt.UTC().Format(time.RFC3339),
			string(r.Status),
		})
	}
	return b.writeFile(b.usersFile(), rows)
}

func (b *FileBackend) FetchRevocations(ctx context.Context) ([]cred.RevocationEntry, error) {
	rows, err := readRows(b.revocationsFile())
	if err != nil {
		return nil, err
	}

	var entries []cred.RevocationEntry
	var parseErrs *multierror.Error
	for i, row := range rows {
		row = strutil.TrimStrings(row)
		if len(row) != 2 {
			parseErrs = multierror.Append(parseErrs, fmt.Errorf("row %d: expected 2 columns, got %d", i+1, len(row)))
			continue
		}
		cutoff, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			parseErrs = multierror.Append(parseErrs, fmt.Errorf("row %d: bad invalid_before %q: %w", i+1, row[1], err))
			continue
		}
		entries = append(entries, cred.RevocationEntry{Owner: row[0], InvalidBefore: cutoff})
	}

	if err := parseErrs.ErrorOrNil(); err != nil {
		return nil, &UnavailableError{Op: "parse " + revocationsFileName, Err: err, Malformed: true}
	}
	return entries, nil
}

func (b *FileBackend) PutRevocation(ctx context.Context, owner string, invalidBefore time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.FetchRevocations(ctx)
	if err != nil {
		return err
	}

	cutoffs := make(map[string]time.Time, len(entries)+1)
	for _, e := range entries {
		cutoffs[e.Owner] = e.InvalidBefore
	}
	// Monotonic: keep the maximum cutoff per owner.
	if current, ok := cutoffs[owner]; !ok || invalidBefore.After(current) {
		cutoffs[owner] = invalidBefore
	}

	owners := make([]string, 0, len(cutoffs))
	for o := range cutoffs {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	rows := make([][]string, 0, len(owners))
	for _, o := range owners {
		rows = append(rows, []string{o, cutoffs[o].UTC().Format(time.RFC3339)})
	}
	return b.writeFile(b.revocationsFile(), rows)
}

// writeFile writes rows to a temp file in the same directory and renames
// it into place. Either the whole record set reflects the change or the
// store is left at its prior state.
func (b *FileBackend) writeFile(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &UnavailableError{Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return &UnavailableError{Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		cleanup()
		return &UnavailableError{Op: "write " + filepath.Base(path), Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &UnavailableError{Op: "sync " + filepath.Base(path), Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &UnavailableError{Op: "close " + filepath.Base(path), Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &UnavailableError{Op: "rename " + filepath.Base(path), Err: err}
	}
	return nil
}
