package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/nutrilog/gatekeeper/cred"
	"github.com/nutrilog/gatekeeper/logger"
)

const (
	defaultUsersTable       = "gatekeeper_users"
	defaultRevocationsTable = "gatekeeper_revocations"
)

// PostgresBackend stores credential records in PostgreSQL. It exists for
// deployments that outgrow the shared-file store; the monotonic revocation
// upsert is enforced in SQL so it holds even with a future second writer.
type PostgresBackend struct {
	db               *sql.DB
	usersTable       string
	revocationsTable string
	log              logger.Logger
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend creates a backend from config["connection_url"], with
// optional table name overrides and table creation skip.
func NewPostgresBackend(config map[string]string, log logger.Logger) (Backend, error) {
	connURL, ok := config["connection_url"]
	if !ok || connURL == "" {
		return nil, fmt.Errorf("'connection_url' must be set")
	}

	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	b := &PostgresBackend{
		db:               db,
		usersTable:       defaultUsersTable,
		revocationsTable: defaultRevocationsTable,
		log:              log.WithComponent("storage.postgres"),
	}
	if t := config["users_table"]; t != "" {
		b.usersTable = t
	}
	if t := config["revocations_table"]; t != "" {
		b.revocationsTable = t
	}

	if config["skip_create_table"] != "true" {
		if err := b.createTables(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *PostgresBackend) createTables() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			token      TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			issued_at  TIMESTAMPTZ NOT NULL,
			status     TEXT NOT NULL
		)`, b.usersTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			owner          TEXT PRIMARY KEY,
			invalid_before TIMESTAMPTZ NOT NULL
		)`, b.revocationsTable),
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (b *PostgresBackend) FetchAll(ctx context.Context) ([]cred.Record, error) {
	query := fmt.Sprintf("SELECT token, owner, issued_at, status FROM %s ORDER BY owner, issued_at", b.usersTable)
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &UnavailableError{Op: "fetch_all", Err: err}
	}
	defer rows.Close()

	var records []cred.Record
	for rows.Next() {
		var rec cred.Record
		var status string
		if err := rows.Scan(&rec.Token, &rec.Owner, &rec.IssuedAt, &status); err != nil {
			return nil, &UnavailableError{Op: "fetch_all", Err: err, Malformed: true}
		}
		rec.Status = cred.Status(status)
		if rec.Status != cred.StatusActive && rec.Status != cred.StatusRevoked {
			return nil, &UnavailableError{
				Op:        "fetch_all",
				Err:       fmt.Errorf("bad status %q for token of %q", status, rec.Owner),
				Malformed: true,
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Op: "fetch_all", Err: err}
	}
	return records, nil
}

func (b *PostgresBackend) AppendOrUpdate(ctx context.Context, rec cred.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (token, owner, issued_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET owner = $2, issued_at = $3, status = $4`, b.usersTable)
	if _, err := b.db.ExecContext(ctx, query, rec.Token, rec.Owner, rec.IssuedAt.UTC(), string(rec.Status)); err != nil {
		return &UnavailableError{Op: "append_or_update", Err: err}
	}
	return nil
}

func (b *PostgresBackend) FetchRevocations(ctx context.Context) ([]cred.RevocationEntry, error) {
	query := fmt.Sprintf("SELECT owner, invalid_before FROM %s ORDER BY owner", b.revocationsTable)
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &UnavailableError{Op: "fetch_revocations", Err: err}
	}
	defer rows.Close()

	var entries []cred.RevocationEntry
	for rows.Next() {
		var e cred.RevocationEntry
		if err := rows.Scan(&e.Owner, &e.InvalidBefore); err != nil {
			return nil, &UnavailableError{Op: "fetch_revocations", Err: err, Malformed: true}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &UnavailableError{Op: "fetch_revocations", Err: err}
	}
	return entries, nil
}

func (b *PostgresBackend) PutRevocation(ctx context.Context, owner string, invalidBefore time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (owner, invalid_before)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET
		invalid_before = GREATEST(%s.invalid_before, EXCLUDED.invalid_before)`,
		b.revocationsTable, b.revocationsTable)
	if _, err := b.db.ExecContext(ctx, query, owner, invalidBefore.UTC()); err != nil {
		return &UnavailableError{Op: "put_revocation", Err: err}
	}
	return nil
}

// Close closes the database connection pool.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
