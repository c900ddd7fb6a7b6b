// Package syncer provides the periodic control loop that refreshes the
// local schedule store from the remote snapshot.
//
// The loop is best-effort with at most one concurrent attempt and no
// backoff: a failed attempt is simply retried at the next scheduled tick,
// which bounds retry pressure. Errors are logged and never propagated
// upward; a failed sync is observable only as stale data.
package syncer

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/confapp/schedstore/internal/model"
	"github.com/confapp/schedstore/internal/store"
)

// Fetcher retrieves the remote schedule snapshot for the bound conference
// edition.
type Fetcher interface {
	Fetch(ctx context.Context) (*model.Schedule, error)
}

// Config holds synchronizer configuration.
type Config struct {
	// Interval between sync attempts, and the minimum age of the last
	// successful sync before a new fetch is allowed. Defaults to one hour.
	Interval time.Duration

	// Logger for sync activity. Defaults to a stderr logger.
	Logger *log.Logger

	// OnImported, if set, is called after each successful import with the
	// imported schedule. Used to feed status observers; must not block.
	OnImported func(*model.Schedule)
}

// Status is a snapshot of the synchronizer's observable state.
type Status struct {
	InFlight    bool      `json:"in_flight"`
	LastSuccess time.Time `json:"last_success"`
	Fetches     int       `json:"fetches"`
	Imports     int       `json:"imports"`
	Failures    int       `json:"failures"`
}

// Syncer periodically fetches the remote schedule and imports it into the
// store. Bound to one conference edition via its Fetcher.
type Syncer struct {
	store      *store.Store
	fetcher    Fetcher
	interval   time.Duration
	logger     *log.Logger
	onImported func(*model.Schedule)

	mu          sync.Mutex
	inFlight    bool
	lastSuccess time.Time
	fetches     int
	imports     int
	failures    int

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a synchronizer. The conference year and endpoint are carried
// by the fetcher; the interval and logger come from config.
func New(st *store.Store, fetcher Fetcher, config Config) *Syncer {
	interval := config.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Syncer{
		store:      st,
		fetcher:    fetcher,
		interval:   interval,
		logger:     logger,
		onImported: config.OnImported,
		now:        time.Now,
	}
}

// Start triggers an immediate sync attempt, then arms a repeating timer at
// the configured interval. Calling Start on a running syncer is a no-op.
func (s *Syncer) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// The cancellable context only disarms the tick loop. Attempts get
		// a fresh context so Stop never cancels an in-flight fetch.
		s.TrySync(context.Background())

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.TrySync(context.Background())
			}
		}
	}()
}

// Stop disarms the timer. It does not cancel an in-flight attempt: a fetch
// already dispatched runs to completion (Stop waits for it), and callers
// must tolerate a late import completion after Stop.
func (s *Syncer) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
}

// TrySync performs one sync attempt, unless one is already in flight or the
// last successful sync is younger than the interval. The fetch runs on the
// calling goroutine; the import is submitted as an asynchronous write.
func (s *Syncer) TrySync(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	if s.now().Sub(s.lastSuccess) < s.interval {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.fetches++
	s.mu.Unlock()

	schedule, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.logger.Printf("fetch failed, will retry at next tick: %v", err)
		s.mu.Lock()
		s.inFlight = false
		s.failures++
		s.mu.Unlock()
		return
	}

	s.store.PerformWrite(store.ImportSchedule{Schedule: schedule}, func(err error) {
		s.mu.Lock()
		s.inFlight = false
		if err != nil {
			s.failures++
			s.mu.Unlock()
			if errors.Is(err, store.ErrClosed) {
				return
			}
			s.logger.Printf("import failed, will retry at next tick: %v", err)
			return
		}
		s.lastSuccess = s.now()
		s.imports++
		s.mu.Unlock()

		s.logger.Printf("imported schedule: %d events across %d days",
			schedule.EventCount(), len(schedule.Days))
		if s.onImported != nil {
			s.onImported(schedule)
		}
	})
}

// Status returns a snapshot of the synchronizer's state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		InFlight:    s.inFlight,
		LastSuccess: s.lastSuccess,
		Fetches:     s.fetches,
		Imports:     s.imports,
		Failures:    s.failures,
	}
}
