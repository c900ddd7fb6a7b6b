package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/store"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func testSchedule() *model.Schedule {
	return &model.Schedule{
		Conference: "ExampleConf",
		Year:       2026,
		Days: []model.Day{
			{
				Index: 1,
				Date:  "2026-02-07",
				Events: []model.Event{
					{
						ID: 1, Room: "Janson", Track: "Keynotes", Title: "Opening",
						Date:  time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC),
						Start: "09:00", Duration: "00:25",
					},
				},
			},
		},
	}
}

// fakeFetcher counts calls and can block or fail on demand.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	err     error
	started chan struct{} // if set, signaled once per call
	release chan struct{} // if set, Fetch blocks until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context) (*model.Schedule, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return testSchedule(), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "schedule.db"), &store.Config{Logger: testLogger()})
	t.Cleanup(func() { s.Close() })
	return s
}

func waitImported(t *testing.T, imported chan *model.Schedule) *model.Schedule {
	t.Helper()
	select {
	case sched := <-imported:
		return sched
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for import")
		return nil
	}
}

func TestSyncFetchesAndImports(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{}
	imported := make(chan *model.Schedule, 1)

	s := New(st, fetcher, Config{
		Logger:     testLogger(),
		OnImported: func(sched *model.Schedule) { imported <- sched },
	})

	s.TrySync(context.Background())
	sched := waitImported(t, imported)
	if sched.EventCount() != 1 {
		t.Errorf("Imported schedule has %d events, want 1", sched.EventCount())
	}

	status := s.Status()
	if status.InFlight {
		t.Error("Sync still marked in flight after completion")
	}
	if status.Fetches != 1 || status.Imports != 1 || status.Failures != 0 {
		t.Errorf("Unexpected counters: %+v", status)
	}
	if status.LastSuccess.IsZero() {
		t.Error("LastSuccess not recorded")
	}

	tracks, err := store.ReadSync(st, store.AllTracksOrderedByName{})
	if err != nil {
		t.Fatalf("Failed to read tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Name != "Keynotes" {
		t.Errorf("Store not populated: %v", tracks)
	}
}

func TestSyncRefusesConcurrentAttempts(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	imported := make(chan *model.Schedule, 1)

	s := New(st, fetcher, Config{
		Logger:     testLogger(),
		OnImported: func(sched *model.Schedule) { imported <- sched },
	})

	go s.TrySync(context.Background())
	<-fetcher.started

	// A second attempt while the first is still fetching must return
	// without fetching.
	s.TrySync(context.Background())
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("Expected 1 fetch, got %d", got)
	}
	if !s.Status().InFlight {
		t.Error("Expected sync to be in flight")
	}

	close(fetcher.release)
	waitImported(t, imported)
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("Expected 1 fetch after completion, got %d", got)
	}
}

func TestSyncRateLimitsAfterSuccess(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{}
	imported := make(chan *model.Schedule, 1)

	s := New(st, fetcher, Config{
		Interval:   time.Hour,
		Logger:     testLogger(),
		OnImported: func(sched *model.Schedule) { imported <- sched },
	})

	base := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.TrySync(context.Background())
	waitImported(t, imported)

	// Within the interval, attempts are dropped without fetching.
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	s.TrySync(context.Background())
	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("Expected rate-limited attempt to skip fetch, got %d fetches", got)
	}

	// Once the last success is old enough, the next attempt fetches again.
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	s.TrySync(context.Background())
	waitImported(t, imported)
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("Expected 2 fetches, got %d", got)
	}
}

func TestSyncFetchFailureRetriesNextAttempt(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{err: errors.New("network down")}

	s := New(st, fetcher, Config{Logger: testLogger()})

	s.TrySync(context.Background())
	status := s.Status()
	if status.InFlight {
		t.Error("Failed attempt left sync in flight")
	}
	if status.Fetches != 1 || status.Failures != 1 || status.Imports != 0 {
		t.Errorf("Unexpected counters after failure: %+v", status)
	}

	// A failure does not rate-limit the next attempt.
	s.TrySync(context.Background())
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("Expected retry to fetch, got %d fetches", got)
	}
}

// contextFetcher blocks until released and fails if its context is
// cancelled first.
type contextFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *contextFetcher) Fetch(ctx context.Context) (*model.Schedule, error) {
	close(f.started)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
		return testSchedule(), nil
	}
}

func TestStopDoesNotCancelInFlightFetch(t *testing.T) {
	st := newTestStore(t)
	fetcher := &contextFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	imported := make(chan *model.Schedule, 1)

	s := New(st, fetcher, Config{
		Logger:     testLogger(),
		OnImported: func(sched *model.Schedule) { imported <- sched },
	})

	s.Start()
	<-fetcher.started

	// Stop while the fetch is blocked; it must wait rather than cancel.
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the fetch was still in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(fetcher.release)
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for Stop")
	}

	waitImported(t, imported)
	status := s.Status()
	if status.Failures != 0 || status.Imports != 1 {
		t.Errorf("In-flight fetch was cancelled by Stop: %+v", status)
	}
}

func TestSyncStartStop(t *testing.T) {
	st := newTestStore(t)
	fetcher := &fakeFetcher{}
	imported := make(chan *model.Schedule, 4)

	s := New(st, fetcher, Config{
		Interval:   time.Hour,
		Logger:     testLogger(),
		OnImported: func(sched *model.Schedule) { imported <- sched },
	})

	s.Start()
	s.Start() // second Start is a no-op
	waitImported(t, imported)

	s.Stop()
	s.Stop() // second Stop is a no-op

	if got := fetcher.callCount(); got != 1 {
		t.Errorf("Expected 1 fetch from immediate sync, got %d", got)
	}
}
