package tracks

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/prefs"
	"github.com/confapp/schedstore/internal/store"
)

// TestIndexFromStore runs the full path a UI refresh takes: import a
// snapshot, read the track list back, overlay persisted favorites, and
// replay a toggle against the resulting index.
func TestIndexFromStore(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)

	st := store.New(filepath.Join(dir, "schedule.db"), &store.Config{Logger: logger})
	defer st.Close()

	schedule := &model.Schedule{
		Conference: "ExampleConf",
		Year:       2026,
		Days: []model.Day{
			{
				Index: 1,
				Date:  "2026-02-07",
				Events: []model.Event{
					{
						ID: 1, Room: "Janson", Track: "A", Title: "First",
						Date:  time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC),
						Start: "09:00", Duration: "00:50",
					},
				},
			},
			{
				Index: 2,
				Date:  "2026-02-08",
				Events: []model.Event{
					{
						ID: 2, Room: "Janson", Track: "B", Title: "Second",
						Date:  time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC),
						Start: "09:00", Duration: "00:50",
					},
				},
			},
		},
	}
	if err := st.PerformWriteSync(store.ImportSchedule{Schedule: schedule}); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	pf, err := prefs.Open(filepath.Join(dir, "settings.yaml"), logger)
	if err != nil {
		t.Fatalf("Failed to open settings: %v", err)
	}
	defer pf.Close()
	pf.AddFavoriteTrack("B")

	allTracks, err := store.ReadSync(st, store.AllTracksOrderedByName{})
	if err != nil {
		t.Fatalf("Failed to read tracks: %v", err)
	}

	ix := NewIndex()
	ix.Load(allTracks, pf.FavoriteTracks())

	wantFilters := []Filter{All, {Day: 1}, {Day: 2}}
	if diff := cmp.Diff(wantFilters, ix.Filters()); diff != "" {
		t.Fatalf("Filters mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B"}, trackNames(ix.FavoriteTracks(All))); diff != "" {
		t.Fatalf("Favorites mismatch (-want +got):\n%s", diff)
	}

	// Unfavoring B empties every subset that contains it.
	edits := ix.ToggleFavorite("B")
	wantEdits := []Edit{
		{Kind: DeleteRow, Filter: All, Position: 0},
		{Kind: DeleteSection, Filter: All, Position: -1},
		{Kind: DeleteRow, Filter: Filter{Day: 2}, Position: 0},
		{Kind: DeleteSection, Filter: Filter{Day: 2}, Position: -1},
	}
	if diff := cmp.Diff(wantEdits, edits); diff != "" {
		t.Errorf("Edits mismatch (-want +got):\n%s", diff)
	}

	// Persist the toggle the way the UI layer would.
	pf.RemoveFavoriteTrack("B")
	rebuilt := NewIndex()
	rebuilt.Load(allTracks, pf.FavoriteTracks())
	if got := rebuilt.FavoriteTracks(All); len(got) != 0 {
		t.Errorf("Favorites survived removal: %v", trackNames(got))
	}
}
