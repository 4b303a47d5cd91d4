// Package txstore implements a transactional record store fronted by
// row-level two-phase locking with shared/exclusive modes, FIFO per-row
// wait queues, and depth-first waits-for deadlock detection.
//
// Two fixed-size tables, A and B, hold rows indexed 1..M. A transaction
// picks a window of 10 consecutive rows, reads a prefix of them in shared
// mode, and transfers value between the A/B copies of the remaining rows
// under exclusive locks. Every lock acquisition that would conflict with
// an existing holder is checked for a wait cycle before the caller blocks;
// a cycle aborts the calling transaction rather than deadlocking it.
package txstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clabs/multicore-kernels/internal/seqlist"
)

// ErrDeadlock is returned by LockManager.Acquire when granting the request
// would complete a wait cycle. The caller's contract is to abort.
var ErrDeadlock = errors.New("txstore: deadlock detected")

// Mode is a lock mode: shared or exclusive.
type Mode int

const (
	ModeShared Mode = iota
	ModeExclusive
)

func (m Mode) String() string {
	if m == ModeExclusive {
		return "X"
	}
	return "S"
}

// TableID identifies one of the two fixed tables.
type TableID int

const (
	TableA TableID = iota
	TableB
)

func (t TableID) String() string {
	if t == TableB {
		return "B"
	}
	return "A"
}

// Row is one record: a value and the id of the transaction that last
// updated it.
type Row struct {
	ID              int
	Value           int64
	LastUpdatedTrxID uint64
}

// Table is a fixed-size, 1-indexed collection of rows, guarded by its own
// mutex for value reads/writes (distinct from the LockManager's lock
// bucket mutex: holding a row lock is what makes these reads/writes safe
// across transactions, but Go's race detector still wants an explicit
// guard around the slice since readers under S locks can run
// concurrently).
type Table struct {
	id   TableID
	mu   sync.Mutex
	rows []Row
}

// NewTable allocates a table of size rows; row i starts with value seed(i)
// and LastUpdatedTrxID 0.
func NewTable(id TableID, size int, seed func(row int) int64) *Table {
	rows := make([]Row, size+1) // 1-indexed; rows[0] unused
	for i := 1; i <= size; i++ {
		rows[i] = Row{ID: i, Value: seed(i), LastUpdatedTrxID: 0}
	}
	return &Table{id: id, rows: rows}
}

// Size returns the number of addressable rows (not counting the unused
// index 0 slot).
func (t *Table) Size() int { return len(t.rows) - 1 }

// Get returns a copy of the row at r. The caller must hold an appropriate
// lock on (t.id, r) via the store's LockManager.
func (t *Table) Get(r int) Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows[r]
}

// Set overwrites the row at r. The caller must hold an exclusive lock on
// (t.id, r).
func (t *Table) Set(r int, value int64, trxID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[r].Value = value
	t.rows[r].LastUpdatedTrxID = trxID
}

// TxnState is a transaction's lifecycle state.
type TxnState int

const (
	StateIdle TxnState = iota
	StateRunning
	StateWaiting
)

func (s TxnState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	default:
		return "IDLE"
	}
}

// Txn is a transaction: its identity, the thread that owns it, its
// lifecycle state, the locks it holds (in acquisition order, so commit can
// release them in that order), and the private mutex+cond it parks on
// while waiting for a conflicting lock to free up.
type Txn struct {
	ID         uint64
	UUID       uuid.UUID
	ThreadIdx  int
	mu         sync.Mutex
	cond       *sync.Cond
	state      TxnState
	waitingFor *LockRequest
	held       []*LockRequest
}

func newTxn(id uint64, threadIdx int) *Txn {
	t := &Txn{ID: id, UUID: uuid.New(), ThreadIdx: threadIdx, state: StateIdle}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// State returns the transaction's current lifecycle state.
func (t *Txn) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LockRequest is one entry in a row's lock bucket: a request for a mode on
// a (table, record) pair by a transaction, in one of two states.
type LockRequest struct {
	Table TableID
	Row   int
	Mode  Mode
	Owner *Txn
	state requestState
}

type requestState int

const (
	requestWaiting requestState = iota
	requestAcquired
)

func (l *LockRequest) sameRow(table TableID, row int) bool {
	return l.Table == table && l.Row == row
}

// LockManager is a hash table of per-row lock buckets guarded by a single
// mutex (spec.md §4.E "global or striped"; see DESIGN.md for why a global
// mutex was chosen here), plus a global transaction-id counter.
type LockManager struct {
	mu      sync.Mutex
	buckets map[bucketKey]*seqlist.List[*LockRequest]
	trxCtr  uint64
	logger  zerolog.Logger
}

type bucketKey struct {
	table TableID
	row   int
}

// NewLockManager constructs an empty LockManager.
func NewLockManager(opts ...Option) *LockManager {
	cfg := managerConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LockManager{
		buckets: make(map[bucketKey]*seqlist.List[*LockRequest]),
		logger:  cfg.logger,
	}
}

// Option configures a LockManager constructed by NewLockManager.
type Option func(*managerConfig)

type managerConfig struct {
	logger zerolog.Logger
}

// WithLogger attaches a structured logger used to report deadlocks
// detected on acquire.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *managerConfig) { c.logger = logger }
}

// NewTxn allocates a fresh transaction with a monotonically increasing id,
// starting at 1.
func (m *LockManager) NewTxn(threadIdx int) *Txn {
	m.mu.Lock()
	m.trxCtr++
	id := m.trxCtr
	m.mu.Unlock()
	return newTxn(id, threadIdx)
}

// TxnCount returns the number of transactions issued so far.
func (m *LockManager) TxnCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trxCtr
}

func (m *LockManager) bucket(table TableID, row int) *seqlist.List[*LockRequest] {
	key := bucketKey{table, row}
	b, ok := m.buckets[key]
	if !ok {
		b = seqlist.New[*LockRequest]()
		m.buckets[key] = b
	}
	return b
}

// Acquire requests mode on (table, row) for trx, blocking if a conflicting
// lock is already held. If granting the request would complete a wait
// cycle, it returns ErrDeadlock without enqueuing anything. The caller's
// contract on ErrDeadlock is to abort: release every lock it already
// holds.
func (m *LockManager) Acquire(table TableID, row int, mode Mode, trx *Txn) (*LockRequest, error) {
	m.mu.Lock()

	b := m.bucket(table, row)
	conflict := m.firstConflict(b, table, row, mode, trx)

	if conflict != nil {
		if m.detectDeadlock(conflict, trx) {
			m.mu.Unlock()
			m.logger.Warn().
				Uint64("trx", trx.ID).
				Int("table", int(table)).
				Int("row", row).
				Msg("txstore: deadlock detected on acquire")
			return nil, ErrDeadlock
		}
	}

	req := &LockRequest{Table: table, Row: row, Mode: mode, Owner: trx}
	if conflict != nil {
		req.state = requestWaiting
	} else {
		req.state = requestAcquired
	}
	b.Append(req)

	if conflict != nil {
		trx.mu.Lock()
		trx.waitingFor = req
		trx.state = StateWaiting
		m.mu.Unlock()

		for req.state == requestWaiting {
			trx.cond.Wait()
		}
		trx.mu.Unlock()

		m.mu.Lock()
		trx.mu.Lock()
		trx.waitingFor = nil
		trx.state = StateRunning
		trx.mu.Unlock()
		m.mu.Unlock()
	} else {
		m.mu.Unlock()
	}

	trx.mu.Lock()
	trx.held = append(trx.held, req)
	trx.mu.Unlock()

	return req, nil
}

// firstConflict scans the bucket for the earliest request on (table, row)
// that conflicts with a new request of mode. Must be called holding m.mu.
func (m *LockManager) firstConflict(b *seqlist.List[*LockRequest], table TableID, row int, mode Mode, _ *Txn) *LockRequest {
	for n := b.Front(); n != nil; n = n.Next() {
		req := n.Value()
		if !req.sameRow(table, row) {
			continue
		}
		if mode == ModeShared {
			if req.Mode == ModeExclusive {
				return req
			}
			continue
		}
		// mode == ModeExclusive: any earlier request on this row conflicts.
		return req
	}
	return nil
}

// detectDeadlock runs a depth-first search over the implicit waits-for
// graph rooted at the blocking lock conf, looking for a back-edge to trx.
// Must be called holding m.mu.
func (m *LockManager) detectDeadlock(conf *LockRequest, trx *Txn) bool {
	visited := make(map[uint64]bool)
	return m.dfs(conf, trx, visited)
}

func (m *LockManager) dfs(conf *LockRequest, target *Txn, visited map[uint64]bool) bool {
	holder := conf.Owner
	if holder.ID == target.ID {
		return true
	}
	if visited[holder.ID] {
		return false
	}
	visited[holder.ID] = true

	holder.mu.Lock()
	state := holder.state
	waitingFor := holder.waitingFor
	holder.mu.Unlock()

	if state != StateWaiting || waitingFor == nil {
		return false
	}

	b := m.bucket(waitingFor.Table, waitingFor.Row)
	for n := b.Front(); n != nil; n = n.Next() {
		req := n.Value()
		if req == waitingFor {
			break
		}
		if !req.sameRow(waitingFor.Table, waitingFor.Row) {
			continue
		}
		if m.dfs(req, target, visited) {
			return true
		}
	}
	return false
}

// Release unlinks lock from its bucket and wakes successors per the
// first-holder wake rules (S-burst on X release; wake the first X
// successor on S release). The caller must already hold the lock via a
// prior successful Acquire.
func (m *LockManager) Release(lock *LockRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(lock.Table, lock.Row)

	first := m.isFirstOnRow(b, lock)

	if first {
		m.wakeSuccessors(b, lock)
	}

	b.DeleteFirst(func(r *LockRequest) bool { return r == lock })
}

func (m *LockManager) isFirstOnRow(b *seqlist.List[*LockRequest], lock *LockRequest) bool {
	for n := b.Front(); n != nil; n = n.Next() {
		req := n.Value()
		if !req.sameRow(lock.Table, lock.Row) {
			continue
		}
		return req == lock
	}
	return false
}

func (m *LockManager) wakeSuccessors(b *seqlist.List[*LockRequest], lock *LockRequest) {
	var successors []*LockRequest
	for n := b.Front(); n != nil; n = n.Next() {
		req := n.Value()
		if req == lock || !req.sameRow(lock.Table, lock.Row) {
			continue
		}
		successors = append(successors, req)
	}
	if len(successors) == 0 {
		return
	}

	if lock.Mode == ModeExclusive {
		first := successors[0]
		if first.Mode == ModeExclusive {
			m.wake(first)
			return
		}
		for _, s := range successors {
			if s.Mode == ModeExclusive {
				break
			}
			m.wake(s)
		}
		return
	}

	// lock.Mode == ModeShared: wake the first successor only if it is X.
	if successors[0].Mode == ModeExclusive {
		m.wake(successors[0])
	}
}

func (m *LockManager) wake(req *LockRequest) {
	req.Owner.mu.Lock()
	req.state = requestAcquired
	req.Owner.cond.Signal()
	req.Owner.mu.Unlock()
}

// Snapshot returns a point-in-time count of lock requests per bucket,
// for introspection/diagnostics (not used by the acquire/release path).
func (m *LockManager) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.buckets))
	for key, b := range m.buckets {
		out[fmt.Sprintf("%s:%d", key.table, key.row)] = b.Len()
	}
	return out
}
