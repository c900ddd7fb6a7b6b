// Package model provides the data structures for a conference schedule
// snapshot: tracks, events, people and their event-scoped metadata.
//
// A Schedule is produced once per synchronization cycle by a remote decoder
// and is treated as immutable after that. The store owns the persisted rows
// and replaces them wholesale on each import.
package model

import (
	"fmt"
	"time"
)

// Schedule is one complete conference snapshot: a header plus the ordered
// list of conference days.
type Schedule struct {
	Conference string `json:"conference"`
	Year       int    `json:"year"`
	Days       []Day  `json:"days"`
}

// Day groups the events that occur on one conference day.
// Index is 1-based and conference-relative (day 1, day 2, ...).
type Day struct {
	Index  int     `json:"index"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Events []Event `json:"events"`
}

// Event is a single scheduled session.
//
// ID is the primary key: stable across years, unique within one conference
// edition. Track references Track.Name.
type Event struct {
	ID       int64  `json:"id"`
	Room     string `json:"room"`
	Track    string `json:"track"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Abstract string `json:"abstract,omitempty"`

	// Date is the absolute start of the event.
	Date time.Time `json:"date"`

	// Start and Duration are the wall-clock components ("HH:MM") shown in
	// schedule listings, kept separate from Date because the remote snapshot
	// carries them independently.
	Start    string `json:"start"`
	Duration string `json:"duration"`

	Links       []Link       `json:"links,omitempty"`
	People      []Person     `json:"people,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Track is a named grouping of events. Name is the primary key and is
// case-sensitive. All events referencing a track agree on its day.
type Track struct {
	Name string `json:"name"`
	Day  int    `json:"day"`
	Date string `json:"date"` // representative date, YYYY-MM-DD
}

// Person is a speaker or other participant, many-to-many with events.
type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Link is event-scoped reference material with no independent lifecycle.
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Attachment is an event-scoped file reference. Type is a display grouping
// tag only (e.g. "slides", "paper").
type Attachment struct {
	Type string `json:"type"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Validate checks that the schedule is internally consistent enough to
// import: event ids are positive and unique, track references are non-empty
// and agree on their day, and person ids are positive.
func (s *Schedule) Validate() error {
	seen := make(map[int64]int)
	trackDays := make(map[string]int)
	for _, day := range s.Days {
		if day.Index < 1 {
			return fmt.Errorf("day index must be 1-based (got %d)", day.Index)
		}
		for _, ev := range day.Events {
			if ev.ID <= 0 {
				return fmt.Errorf("event id must be positive (got %d)", ev.ID)
			}
			if prev, ok := seen[ev.ID]; ok {
				return fmt.Errorf("duplicate event id %d (days %d and %d)", ev.ID, prev, day.Index)
			}
			seen[ev.ID] = day.Index
			if ev.Track == "" {
				return fmt.Errorf("event %d has no track", ev.ID)
			}
			if prev, ok := trackDays[ev.Track]; ok && prev != day.Index {
				return fmt.Errorf("track %q spans days %d and %d", ev.Track, prev, day.Index)
			}
			trackDays[ev.Track] = day.Index
			if ev.Title == "" {
				return fmt.Errorf("event %d has no title", ev.ID)
			}
			for _, p := range ev.People {
				if p.ID <= 0 {
					return fmt.Errorf("event %d references person with id %d", ev.ID, p.ID)
				}
			}
		}
	}
	return nil
}

// EventCount returns the total number of events across all days.
func (s *Schedule) EventCount() int {
	n := 0
	for _, day := range s.Days {
		n += len(day.Events)
	}
	return n
}

// Tracks derives the track list from the schedule's events, one entry per
// distinct track name, ordered by first appearance. The representative date
// is taken from the day the track first appears on.
func (s *Schedule) Tracks() []Track {
	var tracks []Track
	seen := make(map[string]bool)
	for _, day := range s.Days {
		for _, ev := range day.Events {
			if seen[ev.Track] {
				continue
			}
			seen[ev.Track] = true
			tracks = append(tracks, Track{Name: ev.Track, Day: day.Index, Date: day.Date})
		}
	}
	return tracks
}
