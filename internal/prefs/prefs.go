// Package prefs holds the small persisted values owned by the application
// rather than the schedule store: favorite track names, favorite event ids,
// and per-event playback positions.
//
// State lives in a single YAML settings file written atomically on every
// mutation. Mutations are idempotent: adding an already-favorite item or
// removing an absent one is a silent no-op that fires no notification.
// Subscribers receive change notifications synchronously, on the mutating
// goroutine, and must unsubscribe explicitly via Subscription.Cancel.
package prefs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// PlaybackState is where playback of an event recording stands.
type PlaybackState int

const (
	// Beginning means playback has not started (or was reset).
	Beginning PlaybackState = iota
	// At means playback is paused at Position.Seconds.
	At
	// End means playback finished.
	End
)

// Position is the playback position of one event. Transitions are total:
// any state can move to At or End; Reset returns to Beginning.
type Position struct {
	State   PlaybackState
	Seconds int // meaningful only when State == At
}

// ChangeKind identifies what mutated.
type ChangeKind int

const (
	// TrackFavored / TrackUnfavored: a favorite track name was added/removed.
	TrackFavored ChangeKind = iota
	TrackUnfavored
	// EventFavored / EventUnfavored: a favorite event id was added/removed.
	EventFavored
	EventUnfavored
	// PlaybackChanged: an event's playback position moved.
	PlaybackChanged
	// Reloaded: the settings file was rewritten externally and the whole
	// state was reloaded.
	Reloaded
)

// Change describes one mutation delivered to subscribers.
type Change struct {
	Kind    ChangeKind
	Track   string // set for track changes
	EventID int64  // set for event and playback changes
}

// Subscription is a registered observer handle. Cancel detaches it; after
// Cancel returns no further notifications are delivered.
type Subscription struct {
	store *Store
	id    int
}

// Cancel removes the subscription from the store's registry.
func (s *Subscription) Cancel() {
	if s.store == nil {
		return
	}
	s.store.mu.Lock()
	delete(s.store.subs, s.id)
	s.store.mu.Unlock()
	s.store = nil
}

// Store is the persisted favorites/playback state with change notification.
// Safe for concurrent use.
type Store struct {
	path   string
	logger *log.Logger

	mu             sync.Mutex
	favoriteTracks map[string]bool
	favoriteEvents map[int64]bool
	playback       map[int64]Position
	subs           map[int]func(Change)
	nextSub        int

	watch *watcher
}

// Open loads (or initializes) the settings file at path. A missing file is
// not an error: the store starts empty and the file appears on the first
// mutation.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[prefs] ", log.LstdFlags)
	}

	s := &Store{
		path:           path,
		logger:         logger,
		favoriteTracks: make(map[string]bool),
		favoriteEvents: make(map[int64]bool),
		playback:       make(map[int64]Position),
		subs:           make(map[int]func(Change)),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := s.decode(raw); err != nil {
		return nil, err
	}
	return s, nil
}

// Subscribe registers fn to receive every subsequent change notification.
// fn runs synchronously on the mutating goroutine and must not call back
// into the store.
func (s *Store) Subscribe(fn func(Change)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return &Subscription{store: s, id: id}
}

// notify delivers a change to all subscribers. Called without s.mu held.
func (s *Store) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// AddFavoriteTrack marks a track name as favorite. Adding a name that is
// already favorite is a no-op with no notification.
func (s *Store) AddFavoriteTrack(name string) {
	s.mu.Lock()
	if s.favoriteTracks[name] {
		s.mu.Unlock()
		return
	}
	s.favoriteTracks[name] = true
	s.saveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: TrackFavored, Track: name})
}

// RemoveFavoriteTrack unmarks a track name. Removing an absent name is a
// no-op with no notification.
func (s *Store) RemoveFavoriteTrack(name string) {
	s.mu.Lock()
	if !s.favoriteTracks[name] {
		s.mu.Unlock()
		return
	}
	delete(s.favoriteTracks, name)
	s.saveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: TrackUnfavored, Track: name})
}

// ContainsFavoriteTrack reports whether the track name is favorite.
func (s *Store) ContainsFavoriteTrack(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoriteTracks[name]
}

// FavoriteTracks returns the favorite track names as a set copy.
func (s *Store) FavoriteTracks() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.favoriteTracks))
	for name := range s.favoriteTracks {
		out[name] = true
	}
	return out
}

// AddFavoriteEvent marks an event id as favorite. Idempotent.
func (s *Store) AddFavoriteEvent(id int64) {
	s.mu.Lock()
	if s.favoriteEvents[id] {
		s.mu.Unlock()
		return
	}
	s.favoriteEvents[id] = true
	s.saveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: EventFavored, EventID: id})
}

// RemoveFavoriteEvent unmarks an event id. Idempotent.
func (s *Store) RemoveFavoriteEvent(id int64) {
	s.mu.Lock()
	if !s.favoriteEvents[id] {
		s.mu.Unlock()
		return
	}
	delete(s.favoriteEvents, id)
	s.saveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: EventUnfavored, EventID: id})
}

// ContainsFavoriteEvent reports whether the event id is favorite.
func (s *Store) ContainsFavoriteEvent(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoriteEvents[id]
}

// FavoriteEvents returns the favorite event ids, ascending.
func (s *Store) FavoriteEvents() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.favoriteEvents))
	for id := range s.favoriteEvents {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Playback returns the playback position for an event. Events never seen
// before are at Beginning.
func (s *Store) Playback(id int64) Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback[id]
}

// SetPlayback moves an event's playback position. Setting the position an
// event already has is a no-op with no notification.
func (s *Store) SetPlayback(id int64, p Position) {
	if p.State != At {
		p.Seconds = 0
	}
	s.mu.Lock()
	if s.playback[id] == p {
		s.mu.Unlock()
		return
	}
	if p.State == Beginning {
		delete(s.playback, id)
	} else {
		s.playback[id] = p
	}
	s.saveLocked()
	s.mu.Unlock()
	s.notify(Change{Kind: PlaybackChanged, EventID: id})
}

// ResetPlayback returns an event to Beginning.
func (s *Store) ResetPlayback(id int64) {
	s.SetPlayback(id, Position{State: Beginning})
}

// fileFormat is the on-disk YAML shape.
type fileFormat struct {
	FavoriteTracks []string               `yaml:"favorite_tracks"`
	FavoriteEvents []int64                `yaml:"favorite_events"`
	Playback       map[int64]yamlPosition `yaml:"playback_positions,omitempty"`
}

type yamlPosition struct {
	State   string `yaml:"state"`
	Seconds int    `yaml:"seconds,omitempty"`
}

// decode replaces the in-memory state from raw settings bytes. Caller may
// hold s.mu or own the store exclusively.
func (s *Store) decode(raw []byte) error {
	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return fmt.Errorf("invalid settings file: %w", err)
	}

	s.favoriteTracks = make(map[string]bool, len(ff.FavoriteTracks))
	for _, name := range ff.FavoriteTracks {
		s.favoriteTracks[name] = true
	}
	s.favoriteEvents = make(map[int64]bool, len(ff.FavoriteEvents))
	for _, id := range ff.FavoriteEvents {
		s.favoriteEvents[id] = true
	}
	s.playback = make(map[int64]Position, len(ff.Playback))
	for id, yp := range ff.Playback {
		switch yp.State {
		case "at":
			s.playback[id] = Position{State: At, Seconds: yp.Seconds}
		case "end":
			s.playback[id] = Position{State: End}
		}
	}
	return nil
}

// saveLocked writes the settings file atomically (temp file + rename).
// Persistence failures are logged, not surfaced: the in-memory state stays
// consistent and the next successful save catches up. Caller holds s.mu.
func (s *Store) saveLocked() {
	ff := fileFormat{
		FavoriteTracks: make([]string, 0, len(s.favoriteTracks)),
		FavoriteEvents: make([]int64, 0, len(s.favoriteEvents)),
	}
	for name := range s.favoriteTracks {
		ff.FavoriteTracks = append(ff.FavoriteTracks, name)
	}
	sort.Strings(ff.FavoriteTracks)
	for id := range s.favoriteEvents {
		ff.FavoriteEvents = append(ff.FavoriteEvents, id)
	}
	sort.Slice(ff.FavoriteEvents, func(i, j int) bool { return ff.FavoriteEvents[i] < ff.FavoriteEvents[j] })
	if len(s.playback) > 0 {
		ff.Playback = make(map[int64]yamlPosition, len(s.playback))
		for id, p := range s.playback {
			switch p.State {
			case At:
				ff.Playback[id] = yamlPosition{State: "at", Seconds: p.Seconds}
			case End:
				ff.Playback[id] = yamlPosition{State: "end"}
			}
		}
	}

	data, err := yaml.Marshal(&ff)
	if err != nil {
		s.logger.Printf("failed to encode settings: %v", err)
		return
	}

	if s.watch != nil {
		s.watch.suppressNext()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		s.logger.Printf("failed to create settings directory: %v", err)
		return
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		s.logger.Printf("failed to write settings: %v", err)
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.logger.Printf("failed to write settings: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.logger.Printf("failed to write settings: %v", err)
		return
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		s.logger.Printf("failed to write settings: %v", err)
		return
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		s.logger.Printf("failed to write settings: %v", err)
	}
}
