// Package tracks derives the per-filter projections that list UIs need
// from the flat track list plus the favorite-track set: filtered track
// lists, favorite subsets, and alphabetic jump indices.
//
// The engine is pure in-memory state with no UI dependency. When a favorite
// toggles it recomputes only the favorite subsets and emits a minimal edit
// description that a list UI can replay without a full reload.
package tracks

import (
	"fmt"
	"sort"
	"unicode"

	"github.com/confapp/schedstore/internal/model"
)

// Filter is a grouping key for track projections: the whole conference
// ("all") or a single conference day.
type Filter struct {
	// Day is the 1-based day index, or 0 for the "all" filter.
	Day int
}

// All is the filter covering every track regardless of day.
var All = Filter{}

// String returns the filter's display key.
func (f Filter) String() string {
	if f.Day == 0 {
		return "all"
	}
	return fmt.Sprintf("day %d", f.Day)
}

// EditKind describes one list edit emitted by ToggleFavorite.
type EditKind int

const (
	// InsertSection indicates the favorites section appeared (subset went
	// empty to non-empty). Emitted before the accompanying InsertRow.
	InsertSection EditKind = iota
	// DeleteSection indicates the favorites section vanished (subset went
	// non-empty to empty). Emitted after the accompanying DeleteRow.
	DeleteSection
	// InsertRow indicates a track entered the favorites subset at Position.
	InsertRow
	// DeleteRow indicates a track left the favorites subset from Position.
	DeleteRow
)

// String returns a human-readable representation of the edit kind.
func (k EditKind) String() string {
	switch k {
	case InsertSection:
		return "insert-section"
	case DeleteSection:
		return "delete-section"
	case InsertRow:
		return "insert-row"
	case DeleteRow:
		return "delete-row"
	default:
		return "unknown"
	}
}

// Edit is one incremental change to a filter's favorites projection. The
// UI layer replays edits in order to animate a list without reloading.
type Edit struct {
	Kind     EditKind
	Filter   Filter
	Position int // row offset within the favorites subset; -1 for sections
}

// Index holds the per-filter projections. Build it with Load; it is not
// safe for concurrent use.
type Index struct {
	filters   []Filter
	tracks    map[Filter][]model.Track
	favorites map[Filter][]model.Track
	titles    map[Filter]map[string]int
	favored   map[string]bool
}

// NewIndex returns an empty index. Call Load before reading projections.
func NewIndex() *Index {
	return &Index{
		tracks:    make(map[Filter][]model.Track),
		favorites: make(map[Filter][]model.Track),
		titles:    make(map[Filter]map[string]int),
		favored:   make(map[string]bool),
	}
}

// Load rebuilds every projection from a complete scan of tracks. The input
// order is preserved within each filter; callers pass tracks already sorted
// by name. favoriteNames is copied.
func (ix *Index) Load(tracks []model.Track, favoriteNames map[string]bool) {
	ix.tracks = make(map[Filter][]model.Track)
	ix.favorites = make(map[Filter][]model.Track)
	ix.titles = make(map[Filter]map[string]int)
	ix.favored = make(map[string]bool, len(favoriteNames))
	for name, ok := range favoriteNames {
		if ok {
			ix.favored[name] = true
		}
	}

	days := make(map[int]bool)
	for _, t := range tracks {
		ix.tracks[All] = append(ix.tracks[All], t)
		if t.Day > 0 {
			days[t.Day] = true
			f := Filter{Day: t.Day}
			ix.tracks[f] = append(ix.tracks[f], t)
		}
	}

	ix.filters = []Filter{All}
	sorted := make([]int, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Ints(sorted)
	for _, d := range sorted {
		ix.filters = append(ix.filters, Filter{Day: d})
	}

	for _, f := range ix.filters {
		ix.favorites[f] = ix.favoriteSubset(f)
		ix.titles[f] = indexTitles(ix.tracks[f])
	}
}

// favoriteSubset projects the favorite tracks of one filter, preserving
// relative order.
func (ix *Index) favoriteSubset(f Filter) []model.Track {
	var subset []model.Track
	for _, t := range ix.tracks[f] {
		if ix.favored[t.Name] {
			subset = append(subset, t)
		}
	}
	return subset
}

// indexTitles maps the first letter of each track name to the offset of the
// first track starting with that letter. Only the first occurrence of each
// letter is recorded.
func indexTitles(tracks []model.Track) map[string]int {
	titles := make(map[string]int)
	for i, t := range tracks {
		if t.Name == "" {
			continue
		}
		letter := string(unicode.ToUpper([]rune(t.Name)[0]))
		if _, ok := titles[letter]; !ok {
			titles[letter] = i
		}
	}
	return titles
}

// Filters returns the sorted, de-duplicated filter keys present. "all" is
// always first.
func (ix *Index) Filters() []Filter {
	return ix.filters
}

// Tracks returns the tracks matching the filter, in load order.
func (ix *Index) Tracks(f Filter) []model.Track {
	return ix.tracks[f]
}

// FavoriteTracks returns the favorite subset for the filter, preserving the
// relative order of Tracks(f).
func (ix *Index) FavoriteTracks(f Filter) []model.Track {
	return ix.favorites[f]
}

// IndexTitles returns the filter's alphabetic jump index: first letter of
// name to the offset of the first track starting with that letter.
func (ix *Index) IndexTitles(f Filter) map[string]int {
	return ix.titles[f]
}

// IsFavorite reports whether the named track is currently favored.
func (ix *Index) IsFavorite(name string) bool {
	return ix.favored[name]
}

// ToggleFavorite flips the favorite status of the named track and
// recomputes the favorite subsets. It returns the edits a list UI replays,
// in order: InsertSection precedes its InsertRow, DeleteRow precedes its
// DeleteSection. Toggling a name not present in any filter yields no edits
// beyond the flipped flag.
func (ix *Index) ToggleFavorite(name string) []Edit {
	adding := !ix.favored[name]
	if adding {
		ix.favored[name] = true
	} else {
		delete(ix.favored, name)
	}

	var edits []Edit
	for _, f := range ix.filters {
		if !ix.filterHasTrack(f, name) {
			continue
		}

		old := ix.favorites[f]
		updated := ix.favoriteSubset(f)
		ix.favorites[f] = updated

		if adding {
			pos := trackPosition(updated, name)
			if len(old) == 0 {
				edits = append(edits, Edit{Kind: InsertSection, Filter: f, Position: -1})
			}
			edits = append(edits, Edit{Kind: InsertRow, Filter: f, Position: pos})
		} else {
			pos := trackPosition(old, name)
			edits = append(edits, Edit{Kind: DeleteRow, Filter: f, Position: pos})
			if len(updated) == 0 {
				edits = append(edits, Edit{Kind: DeleteSection, Filter: f, Position: -1})
			}
		}
	}
	return edits
}

// filterHasTrack reports whether the filter's track list contains name.
func (ix *Index) filterHasTrack(f Filter, name string) bool {
	for _, t := range ix.tracks[f] {
		if t.Name == name {
			return true
		}
	}
	return false
}

// trackPosition returns the offset of name within the subset, or -1.
func trackPosition(subset []model.Track, name string) int {
	for i, t := range subset {
		if t.Name == name {
			return i
		}
	}
	return -1
}
