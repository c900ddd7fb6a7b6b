package store

import (
	"database/sql"
	"fmt"
	"log"
)

// migration is one named, idempotent schema-upgrade step.
type migration struct {
	name string
	sql  string
}

// migrations is the ordered list of schema steps. Each step is applied at
// most once per store, recorded by name in the migrations ledger, inside one
// transaction per step.
//
// Re-ordering or removing a step that has already shipped is forbidden.
// Only appending new steps is safe.
var migrations = []migration{
	{
		name: "create-tracks",
		sql: `CREATE TABLE tracks (
			name TEXT PRIMARY KEY,
			day  INTEGER NOT NULL,
			date TEXT NOT NULL
		) WITHOUT ROWID`,
	},
	{
		name: "create-people",
		sql: `CREATE TABLE people (
			id   INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`,
	},
	{
		name: "create-events",
		sql: `CREATE TABLE events (
			id       INTEGER PRIMARY KEY,
			room     TEXT NOT NULL,
			track    TEXT NOT NULL,
			title    TEXT NOT NULL,
			subtitle TEXT NOT NULL DEFAULT '',
			summary  TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			date     TEXT NOT NULL,
			start    TEXT NOT NULL,
			duration TEXT NOT NULL
		);
		CREATE INDEX idx_events_track ON events(track);
		CREATE INDEX idx_events_date ON events(date)`,
	},
	{
		name: "create-event-links",
		sql: `CREATE TABLE event_links (
			event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name     TEXT NOT NULL,
			url      TEXT NOT NULL,
			PRIMARY KEY (event_id, position)
		)`,
	},
	{
		name: "create-event-attachments",
		sql: `CREATE TABLE event_attachments (
			event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			type     TEXT NOT NULL,
			name     TEXT NOT NULL,
			url      TEXT NOT NULL,
			PRIMARY KEY (event_id, position)
		)`,
	},
	{
		name: "create-participations",
		sql: `CREATE TABLE participations (
			event_id  INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			person_id INTEGER NOT NULL REFERENCES people(id) ON DELETE CASCADE,
			PRIMARY KEY (event_id, person_id)
		);
		CREATE INDEX idx_participations_person ON participations(person_id)`,
	},
	{
		name: "create-search-index",
		sql: `CREATE VIRTUAL TABLE events_search USING fts5(
			title, abstract, track, people,
			content=''
		)`,
	},
	{
		// People are an ordered list per event; the join table must keep
		// the snapshot's order.
		name: "add-participation-position",
		sql:  `ALTER TABLE participations ADD COLUMN position INTEGER NOT NULL DEFAULT 0`,
	},
}

// runMigrations applies, in list order, every step whose name is not yet in
// the ledger. The ledger entry and the schema change commit together, so a
// failed step leaves no partial schema behind. Any failure aborts the open.
func runMigrations(conn *sql.DB, logger *log.Logger) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		name       TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("%w: failed to create ledger: %v", ErrMigrationFailed, err)
	}

	applied, err := appliedMigrations(conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		if err := applyMigration(conn, m); err != nil {
			return err
		}
		logger.Printf("applied migration %s", m.name)
	}

	return nil
}

// appliedMigrations returns the set of step names already in the ledger.
func appliedMigrations(conn *sql.DB) (map[string]bool, error) {
	rows, err := conn.Query(`SELECT name FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read ledger: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan ledger: %v", ErrMigrationFailed, err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate ledger: %v", ErrMigrationFailed, err)
	}
	return applied, nil
}

// applyMigration runs one step and its ledger insert in a single transaction.
func applyMigration(conn *sql.DB, m migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("%w: step %s: %v", ErrMigrationFailed, m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("%w: step %s: %v", ErrMigrationFailed, m.name, err)
	}
	if _, err := tx.Exec(`INSERT INTO migrations (name) VALUES (?)`, m.name); err != nil {
		return fmt.Errorf("%w: step %s: failed to record: %v", ErrMigrationFailed, m.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: step %s: commit: %v", ErrMigrationFailed, m.name, err)
	}
	return nil
}
