// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cspstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/go-csp/cspreport"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS csp_reports (
	id                 TEXT PRIMARY KEY,
	received_at        TEXT NOT NULL,
	useragent          TEXT NOT NULL,
	document_uri       TEXT NOT NULL,
	blocked_uri        TEXT NOT NULL,
	violated_directive TEXT NOT NULL,
	report             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS csp_reports_received_at ON csp_reports (received_at);
`

// SQLiteStore keeps reports in a SQLite database, one row per report with
// the filterable columns broken out and the full JSON beside them.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cspstore: open %s: %w", path, err)
	}

	// SQLite is single-writer; one connection avoids SQLITE_BUSY contention.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cspstore: exec %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cspstore: creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts the report.
func (s *SQLiteStore) Save(ctx context.Context, id string, r *cspreport.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO csp_reports (id, received_at, useragent, document_uri, blocked_uri, violated_directive, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), r.UserAgent,
		r.DocumentURI, r.BlockedURI, r.ViolatedDirective, string(r.Pretty()))
	if err != nil {
		return fmt.Errorf("cspstore: inserting report %s: %w", id, err)
	}
	return nil
}

// StoredReport is a persisted report row as returned by Recent.
type StoredReport struct {
	ID                string
	ReceivedAt        string
	UserAgent         string
	DocumentURI       string
	BlockedURI        string
	ViolatedDirective string
	Report            string
}

// Recent returns up to limit reports, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]StoredReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, useragent, document_uri, blocked_uri, violated_directive, report
		 FROM csp_reports ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("cspstore: querying reports: %w", err)
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var r StoredReport
		if err := rows.Scan(&r.ID, &r.ReceivedAt, &r.UserAgent, &r.DocumentURI, &r.BlockedURI, &r.ViolatedDirective, &r.Report); err != nil {
			return nil, fmt.Errorf("cspstore: scanning report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
