package tracks

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/confapp/schedstore/internal/model"
)

// loadedIndex builds an index over four tracks spread across two days, in
// the name order the store returns them.
func loadedIndex(favorites map[string]bool) *Index {
	ix := NewIndex()
	ix.Load([]model.Track{
		{Name: "Ada", Day: 1, Date: "2026-02-07"},
		{Name: "BSD", Day: 2, Date: "2026-02-08"},
		{Name: "Containers", Day: 1, Date: "2026-02-07"},
		{Name: "Go", Day: 2, Date: "2026-02-08"},
	}, favorites)
	return ix
}

func trackNames(tracks []model.Track) []string {
	names := make([]string, len(tracks))
	for i, t := range tracks {
		names[i] = t.Name
	}
	return names
}

func TestIndexFilters(t *testing.T) {
	ix := loadedIndex(nil)

	want := []Filter{All, {Day: 1}, {Day: 2}}
	if diff := cmp.Diff(want, ix.Filters()); diff != "" {
		t.Errorf("Filters mismatch (-want +got):\n%s", diff)
	}

	if got := All.String(); got != "all" {
		t.Errorf("All filter key = %q, want %q", got, "all")
	}
	if got := (Filter{Day: 2}).String(); got != "day 2" {
		t.Errorf("Day filter key = %q, want %q", got, "day 2")
	}
}

func TestIndexTracksPerFilter(t *testing.T) {
	ix := loadedIndex(nil)

	if diff := cmp.Diff([]string{"Ada", "BSD", "Containers", "Go"}, trackNames(ix.Tracks(All))); diff != "" {
		t.Errorf("All tracks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Ada", "Containers"}, trackNames(ix.Tracks(Filter{Day: 1}))); diff != "" {
		t.Errorf("Day 1 tracks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"BSD", "Go"}, trackNames(ix.Tracks(Filter{Day: 2}))); diff != "" {
		t.Errorf("Day 2 tracks mismatch (-want +got):\n%s", diff)
	}
	if got := ix.Tracks(Filter{Day: 9}); len(got) != 0 {
		t.Errorf("Unknown filter returned tracks: %v", trackNames(got))
	}
}

func TestIndexTitles(t *testing.T) {
	ix := NewIndex()
	ix.Load([]model.Track{
		{Name: "Ada", Day: 1},
		{Name: "BSD", Day: 1},
		{Name: "Bioinformatics", Day: 1},
		{Name: "go", Day: 1},
	}, nil)

	want := map[string]int{"A": 0, "B": 1, "G": 3}
	if diff := cmp.Diff(want, ix.IndexTitles(All)); diff != "" {
		t.Errorf("Jump index mismatch (-want +got):\n%s", diff)
	}
}

func TestFavoriteSubsetPreservesOrder(t *testing.T) {
	ix := loadedIndex(map[string]bool{"Go": true, "Ada": true})

	if diff := cmp.Diff([]string{"Ada", "Go"}, trackNames(ix.FavoriteTracks(All))); diff != "" {
		t.Errorf("Favorite subset mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Ada"}, trackNames(ix.FavoriteTracks(Filter{Day: 1}))); diff != "" {
		t.Errorf("Day 1 favorites mismatch (-want +got):\n%s", diff)
	}
	if !ix.IsFavorite("Go") || ix.IsFavorite("BSD") {
		t.Error("IsFavorite flags wrong")
	}
}

func TestToggleFavoriteAddEmitsSectionThenRow(t *testing.T) {
	ix := loadedIndex(nil)

	edits := ix.ToggleFavorite("Containers")
	want := []Edit{
		{Kind: InsertSection, Filter: All, Position: -1},
		{Kind: InsertRow, Filter: All, Position: 0},
		{Kind: InsertSection, Filter: Filter{Day: 1}, Position: -1},
		{Kind: InsertRow, Filter: Filter{Day: 1}, Position: 0},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("Edits mismatch (-want +got):\n%s", diff)
	}
	if !ix.IsFavorite("Containers") {
		t.Error("Track not marked favorite after toggle")
	}

	// A second favorite in an already non-empty section emits only rows.
	edits = ix.ToggleFavorite("Ada")
	want = []Edit{
		{Kind: InsertRow, Filter: All, Position: 0},
		{Kind: InsertRow, Filter: Filter{Day: 1}, Position: 0},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("Edits mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleFavoriteRemoveEmitsRowThenSection(t *testing.T) {
	ix := loadedIndex(map[string]bool{"Ada": true, "Go": true})

	// Removing Go empties the day 2 subset but not the "all" subset, so only
	// day 2 collapses its section.
	edits := ix.ToggleFavorite("Go")
	want := []Edit{
		{Kind: DeleteRow, Filter: All, Position: 1},
		{Kind: DeleteRow, Filter: Filter{Day: 2}, Position: 0},
		{Kind: DeleteSection, Filter: Filter{Day: 2}, Position: -1},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("Edits mismatch (-want +got):\n%s", diff)
	}

	// Removing the last favorite collapses the remaining sections too.
	edits = ix.ToggleFavorite("Ada")
	want = []Edit{
		{Kind: DeleteRow, Filter: All, Position: 0},
		{Kind: DeleteSection, Filter: All, Position: -1},
		{Kind: DeleteRow, Filter: Filter{Day: 1}, Position: 0},
		{Kind: DeleteSection, Filter: Filter{Day: 1}, Position: -1},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("Edits mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleFavoriteUnknownTrack(t *testing.T) {
	ix := loadedIndex(nil)

	if edits := ix.ToggleFavorite("NoSuchTrack"); len(edits) != 0 {
		t.Errorf("Unknown track emitted edits: %v", edits)
	}
	if !ix.IsFavorite("NoSuchTrack") {
		t.Error("Flag not flipped for unknown track")
	}
	if edits := ix.ToggleFavorite("NoSuchTrack"); len(edits) != 0 {
		t.Errorf("Unknown track emitted edits on removal: %v", edits)
	}
	if ix.IsFavorite("NoSuchTrack") {
		t.Error("Flag not cleared for unknown track")
	}
}

// TestIncrementalMatchesRebuild replays a toggle sequence and checks after
// every step that the incrementally maintained subsets equal a from-scratch
// rebuild with the same favorite set.
func TestIncrementalMatchesRebuild(t *testing.T) {
	tracks := []model.Track{
		{Name: "Ada", Day: 1, Date: "2026-02-07"},
		{Name: "BSD", Day: 2, Date: "2026-02-08"},
		{Name: "Containers", Day: 1, Date: "2026-02-07"},
		{Name: "Go", Day: 2, Date: "2026-02-08"},
	}

	ix := NewIndex()
	ix.Load(tracks, nil)
	favored := make(map[string]bool)

	sequence := []string{"Go", "Ada", "Go", "Containers", "BSD", "Ada", "Containers", "Go", "BSD", "Go"}
	for step, name := range sequence {
		ix.ToggleFavorite(name)
		if favored[name] {
			delete(favored, name)
		} else {
			favored[name] = true
		}

		rebuilt := NewIndex()
		rebuilt.Load(tracks, favored)
		for _, f := range ix.Filters() {
			got := trackNames(ix.FavoriteTracks(f))
			want := trackNames(rebuilt.FavoriteTracks(f))
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("Step %d (%s), filter %s: subset diverged (-rebuild +incremental):\n%s",
					step, name, f, diff)
			}
		}
	}
}
