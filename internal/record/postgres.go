package record

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Rows is the subset of *sql.Rows that LoadRows consumes.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// SelectQuery returns the statement that reads a records table in id
// order, so record ids match the table's row order.
func SelectQuery(table string) string {
	return fmt.Sprintf(
		"SELECT key, authors, year, title, journal, pages, url, ee FROM %s ORDER BY id",
		pq.QuoteIdentifier(table),
	)
}

// Load reads every record of table into a Store.
func Load(ctx context.Context, q Querier, table string) (*Store, error) {
	rows, err := q.QueryContext(ctx, SelectQuery(table))
	if err != nil {
		return nil, fmt.Errorf("querying records table %s: %w", table, err)
	}
	return LoadRows(rows, table)
}

// LoadRows drains rows into a Store, validating every record. rows is
// closed before returning.
func LoadRows(rows Rows, source string) (*Store, error) {
	defer rows.Close()
	var recs []Record
	n := 0
	for rows.Next() {
		n++
		var cols [FieldCount]sql.NullString
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7]); err != nil {
			return nil, fmt.Errorf("scanning record row %d: %w", n, err)
		}
		rec := Record{
			Key:     cols[0].String,
			Authors: cols[1].String,
			Year:    cols[2].String,
			Title:   cols[3].String,
			Journal: cols[4].String,
			Pages:   cols[5].String,
			URL:     cols[6].String,
			EE:      cols[7].String,
		}
		if err := Validate(&rec); err != nil {
			return nil, &ParseError{Source: source, Line: n, Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records rows: %w", err)
	}
	return NewStore(recs)
}

// Tx is the subset of *sql.Tx that Import needs.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// CreateTableQuery returns the DDL for a records table. The serial id
// preserves insertion order, which SelectQuery relies on.
func CreateTableQuery(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id      BIGSERIAL PRIMARY KEY,
	key     TEXT NOT NULL UNIQUE,
	authors TEXT NOT NULL DEFAULT '',
	year    TEXT NOT NULL DEFAULT '',
	title   TEXT NOT NULL,
	journal TEXT NOT NULL DEFAULT '',
	pages   TEXT NOT NULL DEFAULT '',
	url     TEXT NOT NULL DEFAULT '',
	ee      TEXT NOT NULL DEFAULT ''
)`, pq.QuoteIdentifier(table))
}

// Import replaces the contents of table with s using COPY, in id order.
func Import(ctx context.Context, tx Tx, table string, s *Store) error {
	if _, err := tx.ExecContext(ctx, CreateTableQuery(table)); err != nil {
		return fmt.Errorf("creating records table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY", pq.QuoteIdentifier(table))); err != nil {
		return fmt.Errorf("truncating records table %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table,
		"key", "authors", "year", "title", "journal", "pages", "url", "ee"))
	if err != nil {
		return fmt.Errorf("preparing copy into %s: %w", table, err)
	}
	defer stmt.Close()
	for id := 0; id < s.Len(); id++ {
		r := &s.records[id]
		if _, err := stmt.ExecContext(ctx, r.Key, r.Authors, r.Year, r.Title, r.Journal, r.Pages, r.URL, r.EE); err != nil {
			return fmt.Errorf("copying record %d (%s): %w", id, r.Key, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy into %s: %w", table, err)
	}
	return nil
}
