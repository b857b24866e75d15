// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package population

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS population (
	country TEXT NOT NULL,
	year    INTEGER NOT NULL,
	age     INTEGER NOT NULL,
	total   REAL NOT NULL,
	PRIMARY KEY (country, year, age)
)`

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at p.
// Pass ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, p string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", p)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // in-memory databases are per-connection
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed creating schema: %v", err)
	}
	return &SQLiteStore{db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Insert adds or replaces rows in a single transaction.
func (s *SQLiteStore) Insert(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO population (country, year, age, total) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Country, r.Year, r.Age, r.Total); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed inserting %v/%d/%d: %v", r.Country, r.Year, r.Age, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Rows(ctx context.Context, iso3 string, year int) ([]Row, error) {
	rs, err := s.db.QueryContext(ctx,
		`SELECT country, year, age, total FROM population
		 WHERE country = ? COLLATE NOCASE AND year = ? ORDER BY age`, iso3, year)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		var r Row
		if err := rs.Scan(&r.Country, &r.Year, &r.Age, &r.Total); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, rs.Err()
}
