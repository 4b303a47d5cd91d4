package txstore

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Stats accumulates counters observed across every worker goroutine in a
// Store's Run. All fields are updated with atomic adds and are safe to
// read concurrently with Run, though values are only meaningful once Run
// has returned.
type Stats struct {
	Reads     atomic.Uint64
	Updates   atomic.Uint64
	Aborted   atomic.Uint64
	Committed atomic.Uint64
}

// Store ties two tables and a LockManager together into the workload
// described in spec.md §4.E: each transaction picks a row window and table,
// reads a prefix in shared mode, transfers value between A and B for the
// remainder under exclusive locks, then commits or — on deadlock — aborts.
type Store struct {
	tableA  *Table
	tableB  *Table
	lockMgr *LockManager
	readNum int
	logger  zerolog.Logger
	stats   Stats
}

// NewStore constructs a Store over two tables of the given size, with
// readNum shared-mode reads per transaction (0 <= readNum <= 10).
func NewStore(tableSize, readNum int, opts ...StoreOption) (*Store, error) {
	if tableSize <= 0 {
		return nil, fmt.Errorf("txstore: table_size must be > 0, got %d", tableSize)
	}
	if readNum < 0 || readNum > 10 {
		return nil, fmt.Errorf("txstore: read_num must be in [0, 10], got %d", readNum)
	}
	if tableSize < 10 {
		return nil, fmt.Errorf("txstore: table_size must be >= 10 to fit a 10-row window, got %d", tableSize)
	}

	cfg := storeConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Initial row values are random in [10000, 100000).
	seed := func(int) int64 { return int64(rand.IntN(90000) + 10000) }
	s := &Store{
		tableA:  NewTable(TableA, tableSize, seed),
		tableB:  NewTable(TableB, tableSize, seed),
		lockMgr: NewLockManager(WithLogger(cfg.logger)),
		readNum: readNum,
		logger:  cfg.logger,
	}
	return s, nil
}

// StoreOption configures a Store constructed by NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger zerolog.Logger
}

// WithStoreLogger attaches a structured logger used to report aborts.
func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(c *storeConfig) { c.logger = logger }
}

// Stats returns the store's running counters.
func (s *Store) Stats() *Stats { return &s.stats }

// TxnCount returns the number of transactions issued so far.
func (s *Store) TxnCount() uint64 { return s.lockMgr.TxnCount() }

// Run spawns n worker goroutines, each running transactions back-to-back
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		threadIdx := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				s.runTransaction(threadIdx)
			}
		})
	}
	return g.Wait()
}

// runTransaction executes one transaction to completion: it always
// commits or aborts before returning, mirroring run_transaction's
// goto-based cleanup in the original C++ source.
func (s *Store) runTransaction(threadIdx int) {
	trx := s.lockMgr.NewTxn(threadIdx)
	trx.mu.Lock()
	trx.state = StateRunning
	trx.mu.Unlock()

	tableSize := s.tableA.Size()
	k := 1 + rand.IntN(tableSize-9)
	table := TableA
	if rand.IntN(2) == 1 {
		table = TableB
	}

	for r := k; r < k+s.readNum; r++ {
		if !s.read(table, r, trx) {
			s.abort(trx)
			return
		}
	}
	for r := k + s.readNum; r < k+10; r++ {
		if !s.update(r, trx) {
			s.abort(trx)
			return
		}
	}
	s.commit(trx)
}

// read performs a shared-mode read of (table, r) on behalf of trx. Returns
// false on deadlock.
func (s *Store) read(table TableID, r int, trx *Txn) bool {
	_, err := s.lockMgr.Acquire(table, r, ModeShared, trx)
	if err != nil {
		return false
	}
	t := s.tableA
	if table == TableB {
		t = s.tableB
	}
	_ = t.Get(r)
	s.stats.Reads.Add(1)
	return true
}

// update performs the exclusive-mode transfer for row r: lock both
// tables' copies, move 10 units from whichever side currently has more
// (a stable, always-applicable rule so the transfer is well-defined
// regardless of which side drifted positive), and stamp both rows with
// trx's id. Returns false on deadlock.
func (s *Store) update(r int, trx *Txn) bool {
	if _, err := s.lockMgr.Acquire(TableA, r, ModeExclusive, trx); err != nil {
		return false
	}
	if _, err := s.lockMgr.Acquire(TableB, r, ModeExclusive, trx); err != nil {
		return false
	}

	const transfer = 10
	rowA := s.tableA.Get(r)
	rowB := s.tableB.Get(r)

	if rowA.Value >= rowB.Value {
		s.tableA.Set(r, rowA.Value-transfer, trx.ID)
		s.tableB.Set(r, rowB.Value+transfer, trx.ID)
	} else {
		s.tableA.Set(r, rowA.Value+transfer, trx.ID)
		s.tableB.Set(r, rowB.Value-transfer, trx.ID)
	}

	s.stats.Updates.Add(1)
	return true
}

// commit releases every held lock in acquisition order and marks trx IDLE.
func (s *Store) commit(trx *Txn) {
	trx.mu.Lock()
	held := trx.held
	trx.held = nil
	trx.mu.Unlock()

	for _, lock := range held {
		s.lockMgr.Release(lock)
	}

	trx.mu.Lock()
	trx.state = StateIdle
	trx.mu.Unlock()

	s.stats.Committed.Add(1)
}

// abort is behaviorally identical to commit (every held lock is released)
// but counted separately.
func (s *Store) abort(trx *Txn) {
	trx.mu.Lock()
	held := trx.held
	trx.held = nil
	trx.mu.Unlock()

	for _, lock := range held {
		s.lockMgr.Release(lock)
	}

	trx.mu.Lock()
	trx.state = StateIdle
	trx.mu.Unlock()

	s.stats.Aborted.Add(1)
	s.logger.Debug().Uint64("trx", trx.ID).Msg("txstore: transaction aborted on deadlock")
}
