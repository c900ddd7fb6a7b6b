package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/confapp/schedstore/internal/model"
)

// timeFormat is the stored representation of event start times. UTC RFC3339
// at second precision keeps lexicographic order equal to chronological
// order, so queries can sort on the raw column.
const timeFormat = time.RFC3339

// searchLimit bounds the number of results returned by EventsForSearch when
// the caller does not set its own limit.
const searchLimit = 100

// ImportSchedule replaces the entire stored schedule with a new snapshot.
//
// Strategy: replace-all. Every existing track, person, event and piece of
// event metadata is deleted and the new snapshot inserted, all inside the
// single enclosing transaction, so a reader never observes a half-imported
// schedule. Schedules are small (thousands of events); a snapshot replace
// avoids orphan-row bugs from id reuse across editions.
type ImportSchedule struct {
	Schedule *model.Schedule
}

// Perform implements Write.
func (op ImportSchedule) Perform(tx *sql.Tx) error {
	if err := op.Schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM participations`,
		`DELETE FROM event_links`,
		`DELETE FROM event_attachments`,
		`DELETE FROM events`,
		`DELETE FROM people`,
		`DELETE FROM tracks`,
		`INSERT INTO events_search(events_search) VALUES('delete-all')`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to clear previous schedule: %w", err)
		}
	}

	for _, track := range op.Schedule.Tracks() {
		if _, err := tx.Exec(
			`INSERT INTO tracks (name, day, date) VALUES (?, ?, ?)`,
			track.Name, track.Day, track.Date,
		); err != nil {
			return fmt.Errorf("failed to insert track %q: %w", track.Name, err)
		}
	}

	seenPeople := make(map[int64]bool)
	for _, day := range op.Schedule.Days {
		for _, ev := range day.Events {
			if err := insertEvent(tx, ev, seenPeople); err != nil {
				return err
			}
		}
	}

	return nil
}

// insertEvent writes one event plus its links, attachments, participations
// and search row.
func insertEvent(tx *sql.Tx, ev model.Event, seenPeople map[int64]bool) error {
	if _, err := tx.Exec(
		`INSERT INTO events (id, room, track, title, subtitle, summary, abstract, date, start, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Room, ev.Track, ev.Title, ev.Subtitle, ev.Summary, ev.Abstract,
		ev.Date.UTC().Format(timeFormat), ev.Start, ev.Duration,
	); err != nil {
		return fmt.Errorf("failed to insert event %d: %w", ev.ID, err)
	}

	for i, link := range ev.Links {
		if _, err := tx.Exec(
			`INSERT INTO event_links (event_id, position, name, url) VALUES (?, ?, ?, ?)`,
			ev.ID, i, link.Name, link.URL,
		); err != nil {
			return fmt.Errorf("failed to insert link for event %d: %w", ev.ID, err)
		}
	}

	for i, att := range ev.Attachments {
		if _, err := tx.Exec(
			`INSERT INTO event_attachments (event_id, position, type, name, url) VALUES (?, ?, ?, ?, ?)`,
			ev.ID, i, att.Type, att.Name, att.URL,
		); err != nil {
			return fmt.Errorf("failed to insert attachment for event %d: %w", ev.ID, err)
		}
	}

	personNames := make([]string, 0, len(ev.People))
	for i, p := range ev.People {
		personNames = append(personNames, p.Name)
		if !seenPeople[p.ID] {
			seenPeople[p.ID] = true
			if _, err := tx.Exec(
				`INSERT INTO people (id, name) VALUES (?, ?)`,
				p.ID, p.Name,
			); err != nil {
				return fmt.Errorf("failed to insert person %d: %w", p.ID, err)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO participations (event_id, person_id, position) VALUES (?, ?, ?)`,
			ev.ID, p.ID, i,
		); err != nil {
			return fmt.Errorf("failed to insert participation %d/%d: %w", ev.ID, p.ID, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO events_search (rowid, title, abstract, track, people) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Abstract, ev.Track, strings.Join(personNames, " "),
	); err != nil {
		return fmt.Errorf("failed to index event %d: %w", ev.ID, err)
	}

	return nil
}

// AllTracksOrderedByName returns every track sorted by name ascending.
type AllTracksOrderedByName struct{}

// Perform implements Read.
func (AllTracksOrderedByName) Perform(tx *sql.Tx) ([]model.Track, error) {
	rows, err := tx.Query(`SELECT name, day, date FROM tracks ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []model.Track
	for rows.Next() {
		var t model.Track
		if err := rows.Scan(&t.Name, &t.Day, &t.Date); err != nil {
			return nil, fmt.Errorf("%w: track: %v", ErrDecodeFailed, err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}
	return tracks, nil
}

// eventColumns is the shared SELECT column list for event queries.
const eventColumns = `e.id, e.room, e.track, e.title, e.subtitle, e.summary, e.abstract, e.date, e.start, e.duration`

// EventsByTrack returns the events of one track, sorted by start time
// ascending with ties broken by id ascending.
type EventsByTrack struct {
	Name string
}

// Perform implements Read.
func (op EventsByTrack) Perform(tx *sql.Tx) ([]model.Event, error) {
	rows, err := tx.Query(
		`SELECT `+eventColumns+` FROM events e WHERE e.track = ? ORDER BY e.date ASC, e.id ASC`,
		op.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by track: %w", err)
	}
	return collectEvents(tx, rows)
}

// EventsByPerson returns the events a person participates in, sorted by
// start time ascending with ties broken by id ascending.
type EventsByPerson struct {
	ID int64
}

// Perform implements Read.
func (op EventsByPerson) Perform(tx *sql.Tx) ([]model.Event, error) {
	rows, err := tx.Query(
		`SELECT `+eventColumns+` FROM events e
		 JOIN participations p ON p.event_id = e.id
		 WHERE p.person_id = ?
		 ORDER BY e.date ASC, e.id ASC`,
		op.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by person: %w", err)
	}
	return collectEvents(tx, rows)
}

// EventsByIdentifiers returns the events matching the given ids, sorted by
// start time ascending regardless of input order. Ids with no match are
// silently dropped.
type EventsByIdentifiers struct {
	IDs []int64
}

// Perform implements Read.
func (op EventsByIdentifiers) Perform(tx *sql.Tx) ([]model.Event, error) {
	if len(op.IDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(op.IDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(op.IDs))
	for i, id := range op.IDs {
		args[i] = id
	}

	rows, err := tx.Query(
		`SELECT `+eventColumns+` FROM events e
		 WHERE e.id IN (`+placeholders+`)
		 ORDER BY e.date ASC, e.id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by identifiers: %w", err)
	}
	return collectEvents(tx, rows)
}

// EventsForSearch performs a case-insensitive full-text match over event
// titles, abstracts, track names and person names. Results are ordered by
// relevance, then start time, and bounded by Limit (default 100).
type EventsForSearch struct {
	Query string
	Limit int
}

// Perform implements Read.
func (op EventsForSearch) Perform(tx *sql.Tx) ([]model.Event, error) {
	match := ftsQuery(op.Query)
	if match == "" {
		return nil, nil
	}
	limit := op.Limit
	if limit <= 0 {
		limit = searchLimit
	}

	rows, err := tx.Query(
		`SELECT `+eventColumns+` FROM events e
		 JOIN (
			SELECT rowid, bm25(events_search) AS rank
			FROM events_search
			WHERE events_search MATCH ?
		 ) s ON s.rowid = e.id
		 ORDER BY s.rank ASC, e.date ASC, e.id ASC
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	return collectEvents(tx, rows)
}

// ftsQuery turns raw user text into a safe FTS5 prefix query. Each token is
// quoted so FTS operators in user input are matched literally rather than
// interpreted.
func ftsQuery(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, `"`, `""`)
		quoted = append(quoted, `"`+tok+`"*`)
	}
	return strings.Join(quoted, " ")
}

// collectEvents scans event rows and loads their links, people and
// attachments. It takes ownership of rows. The event rows are fully drained
// and closed before the association queries run, since a transaction owns a
// single connection.
func collectEvents(tx *sql.Tx, rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var date string
		if err := rows.Scan(
			&ev.ID, &ev.Room, &ev.Track, &ev.Title, &ev.Subtitle,
			&ev.Summary, &ev.Abstract, &date, &ev.Start, &ev.Duration,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: event: %v", ErrDecodeFailed, err)
		}
		parsed, err := time.Parse(timeFormat, date)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: event %d date %q: %v", ErrDecodeFailed, ev.ID, date, err)
		}
		ev.Date = parsed
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	rows.Close()

	if err := loadAssociations(tx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// loadAssociations fills in links, attachments and people for the given
// events with one batched query per association table.
func loadAssociations(tx *sql.Tx, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Event, len(events))
	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
		placeholders = append(placeholders, "?")
		args = append(args, events[i].ID)
	}
	in := strings.Join(placeholders, ",")

	rows, err := tx.Query(
		`SELECT event_id, name, url FROM event_links
		 WHERE event_id IN (`+in+`) ORDER BY event_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query links: %w", err)
	}
	for rows.Next() {
		var id int64
		var link model.Link
		if err := rows.Scan(&id, &link.Name, &link.URL); err != nil {
			rows.Close()
			return fmt.Errorf("%w: link: %v", ErrDecodeFailed, err)
		}
		byID[id].Links = append(byID[id].Links, link)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating links: %w", err)
	}
	rows.Close()

	rows, err = tx.Query(
		`SELECT event_id, type, name, url FROM event_attachments
		 WHERE event_id IN (`+in+`) ORDER BY event_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	for rows.Next() {
		var id int64
		var att model.Attachment
		if err := rows.Scan(&id, &att.Type, &att.Name, &att.URL); err != nil {
			rows.Close()
			return fmt.Errorf("%w: attachment: %v", ErrDecodeFailed, err)
		}
		byID[id].Attachments = append(byID[id].Attachments, att)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating attachments: %w", err)
	}
	rows.Close()

	rows, err = tx.Query(
		`SELECT pa.event_id, pe.id, pe.name FROM participations pa
		 JOIN people pe ON pe.id = pa.person_id
		 WHERE pa.event_id IN (`+in+`) ORDER BY pa.event_id, pa.position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query participations: %w", err)
	}
	for rows.Next() {
		var id int64
		var p model.Person
		if err := rows.Scan(&id, &p.ID, &p.Name); err != nil {
			rows.Close()
			return fmt.Errorf("%w: person: %v", ErrDecodeFailed, err)
		}
		byID[id].People = append(byID[id].People, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating participations: %w", err)
	}
	rows.Close()

	return nil
}
