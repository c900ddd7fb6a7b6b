// Package store provides the single point of access to the embedded SQLite
// database holding the conference schedule.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrent reads. The store opens lazily: the first operation triggers
// open plus schema migration under the same serialization as the operation
// itself, so concurrent first use cannot race to create two schemas.
//
// Guarantees:
//   - No two write operations ever execute concurrently against the same
//     store; writes are totally ordered by an internal writer lock, and
//     asynchronous writes execute in submission order on a dedicated
//     writer goroutine.
//   - Reads run concurrently with each other, each inside its own deferred
//     transaction, and observe a fully committed snapshot (never a half
//     import).
//   - Asynchronous completions are delivered exactly once, on a designated
//     completion executor (by default a single dispatch goroutine owned by
//     the store), never on the caller's goroutine.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Write is a typed command that mutates the store. Perform runs inside a
// single transaction; returning an error rolls the transaction back.
type Write interface {
	Perform(tx *sql.Tx) error
}

// Read is a typed command that projects a value out of the store without
// mutating it. Perform runs inside a read transaction.
type Read[T any] interface {
	Perform(tx *sql.Tx) (T, error)
}

// Executor delivers completion callbacks for asynchronous operations.
// Implementations must invoke fn exactly once. The default executor is a
// single goroutine owned by the store, which means completions for
// operations submitted in order are delivered in completion order, one at
// a time.
type Executor interface {
	Execute(fn func())
}

// Config holds store configuration.
type Config struct {
	// Logger for store activity. Defaults to a stderr logger.
	Logger *log.Logger

	// Workers is the size of the background pool executing asynchronous
	// reads. Writes always run on a dedicated writer goroutine so that
	// writes submitted in order commit in order. Defaults to 4.
	Workers int

	// Completions receives all asynchronous completion callbacks. If nil,
	// the store runs its own dispatch goroutine.
	Completions Executor
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger:  log.New(os.Stderr, "[store] ", log.LstdFlags),
		Workers: 4,
	}
}

// Store owns the single physical connection pool to the embedded database.
// Construct with New; the database file is not touched until the first
// operation.
type Store struct {
	path   string
	logger *log.Logger

	// mu serializes open, migration and every write transaction.
	mu      sync.Mutex
	conn    *sql.DB
	opened  bool
	openErr error

	// reads feeds the background pool; writes feeds the single writer
	// goroutine, keeping asynchronous writes in submission order.
	reads       chan func()
	writes      chan func()
	completions chan func()
	executor    Executor

	closeMu    sync.Mutex
	closed     bool
	workerWG   sync.WaitGroup
	dispatchWG sync.WaitGroup
}

// New creates a store bound to the given database path. Use ":memory:" for
// an in-memory database (tests, previews). The store is constructed but not
// opened; opening and migrating happen lazily on first use.
func New(path string, config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 4
	}

	s := &Store{
		path:        path,
		logger:      config.Logger,
		reads:       make(chan func(), 64),
		writes:      make(chan func(), 64),
		completions: make(chan func(), 64),
		executor:    config.Completions,
	}

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go s.worker(s.reads)
	}
	s.workerWG.Add(1)
	go s.worker(s.writes)
	if s.executor == nil {
		s.dispatchWG.Add(1)
		go s.dispatch()
	}

	return s
}

// worker executes queued asynchronous operations in channel order.
func (s *Store) worker(queue chan func()) {
	defer s.workerWG.Done()
	for job := range queue {
		job()
	}
}

// dispatch delivers completions one at a time on the store-owned executor
// goroutine.
func (s *Store) dispatch() {
	defer s.dispatchWG.Done()
	for fn := range s.completions {
		fn()
	}
}

// complete posts a completion callback to the designated executor.
func (s *Store) complete(fn func()) {
	if s.executor != nil {
		s.executor.Execute(fn)
		return
	}
	s.completions <- fn
}

// ensureOpen opens the database and applies migrations if that has not
// happened yet. Callers must hold s.mu. The result of the first attempt is
// latched: a failed open fails every subsequent operation.
func (s *Store) ensureOpen() error {
	if s.opened {
		return nil
	}
	if s.openErr != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, s.openErr)
	}

	conn, err := openDatabase(s.path)
	if err != nil {
		s.openErr = err
		s.logger.Printf("open failed: %v", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := runMigrations(conn, s.logger); err != nil {
		_ = conn.Close()
		s.openErr = err
		s.logger.Printf("migration failed: %v", err)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.conn = conn
	s.opened = true
	return nil
}

// openDatabase opens the SQLite database in embedded mode with WAL and
// foreign keys enabled.
func openDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// The _pragma parameters apply to every pooled connection, not just the
	// one a PRAGMA statement would happen to run on.
	connStr := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps an in-memory database from evaporating
	// between pool checkouts; file databases get a small pool for
	// concurrent readers.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(8)
		conn.SetMaxIdleConns(4)
	}

	return conn, nil
}

// PerformWriteSync opens/migrates if needed, then executes op inside a
// single transaction on the calling goroutine, blocking until committed.
// No other write runs concurrently.
func (s *Store) PerformWriteSync(op Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}
	defer tx.Rollback()

	if err := op.Perform(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ReadSync opens/migrates if needed, then executes op inside a read
// transaction on the calling goroutine. Reads may run concurrently with
// each other; each observes a consistent committed snapshot.
func ReadSync[T any](s *Store, op Read[T]) (T, error) {
	var zero T

	s.mu.Lock()
	err := s.ensureOpen()
	conn := s.conn
	s.mu.Unlock()
	if err != nil {
		return zero, err
	}

	tx, err := conn.BeginTx(context.Background(), nil)
	if err != nil {
		return zero, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return op.Perform(tx)
}

// PerformWrite submits op to the writer queue and returns immediately.
// completion is invoked exactly once on the completion executor, with the
// commit result. The queue runs on a single goroutine, so writes submitted
// in order commit in order.
func (s *Store) PerformWrite(op Write, completion func(error)) {
	if !s.submit(s.writes, func() {
		err := s.PerformWriteSync(op)
		if completion != nil {
			s.complete(func() { completion(err) })
		}
	}) {
		if completion != nil {
			completion(ErrClosed)
		}
	}
}

// ReadAsync submits op to the background pool and returns immediately.
// completion is invoked exactly once on the completion executor with the
// projected value or a typed error.
func ReadAsync[T any](s *Store, op Read[T], completion func(T, error)) {
	if !s.submit(s.reads, func() {
		value, err := ReadSync(s, op)
		if completion != nil {
			s.complete(func() { completion(value, err) })
		}
	}) {
		if completion != nil {
			var zero T
			completion(zero, ErrClosed)
		}
	}
}

// submit queues a job unless the store is closed.
func (s *Store) submit(queue chan<- func(), job func()) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	queue <- job
	return true
}

// Close drains pending operations, checkpoints WAL and closes the database.
// Operations submitted after Close fail with ErrClosed.
func (s *Store) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.reads)
	close(s.writes)
	s.closeMu.Unlock()

	// Workers finish pending jobs first; only then is it safe to close the
	// completions channel and let the dispatch goroutine drain it.
	s.workerWG.Wait()
	close(s.completions)
	s.dispatchWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conn
	s.conn = nil
	s.opened = false
	s.openErr = errors.New("store is closed")
	if conn == nil {
		return nil
	}

	if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("warning: failed to checkpoint WAL: %v", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
