// Package mvcc implements a two-variable, per-participant snapshot-isolation
// engine. Each participant owns a pair (a, b) with a+b = C, kept as an
// append-only, newest-first history of versions. Participants repeatedly
// perform an UPDATE that reads a peer's version at a snapshot-consistent
// point, folds it into its own local state, and appends a new version of
// its own — all while preserving a + b = C for every version it ever
// records.
//
// The version counter and the global active list are the only state shared
// across participants, and both are guarded by the bakery lock from
// package bakery, exactly as the algorithm this engine implements
// prescribes. Per-participant histories are owner-exclusive for writes and
// lock-free for reads: a reader either observes the newest version or an
// older one, and either way the invariant holds because history entries
// are immutable once appended.
package mvcc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clabs/multicore-kernels/internal/bakery"
	"github.com/clabs/multicore-kernels/internal/seqlist"
)

// ErrMissingVersion is returned when a participant's history has no entry
// older than the requested bound. This indicates a protocol bug (a history
// that was truncated or never seeded) rather than a recoverable condition.
var ErrMissingVersion = errors.New("mvcc: no version older than bound in participant history")

// ErrInvariantViolated is returned by verification when some participant's
// resolved version does not sum to C.
var ErrInvariantViolated = errors.New("mvcc: a + b != C")

// ErrTooFewParticipants is returned by NewEngine when asked to build an
// engine with fewer than two participants: peer selection is undefined for
// N < 2 (spec open question 2).
var ErrTooFewParticipants = errors.New("mvcc: engine requires at least 2 participants")

// Version is one immutable, recorded state of a participant: a+b = C by
// construction, tagged with the global version number that was current
// when it was appended.
type Version struct {
	A    int64
	B    int64
	Vnum uint64
}

// ActiveEntry records that participant ID is mid-UPDATE, with its
// new version number Vnum not yet committed to history.
type ActiveEntry struct {
	ParticipantID int
	Vnum          uint64
}

// Participant owns one (a, b) pair and its own append-only version
// history. The Updates counter is observed by callers computing
// throughput and fairness; it is only ever incremented by the
// participant's own goroutine.
type Participant struct {
	id      int
	history *seqlist.List[Version]
	updates atomic.Uint64
}

// ID returns the participant's 0..N-1 identity.
func (p *Participant) ID() int { return p.id }

// Updates returns the number of UPDATEs this participant has completed.
func (p *Participant) Updates() uint64 { return p.updates.Load() }

// History exposes the participant's version history for read-only
// traversal (newest-first via Back()/Prev()). Callers must not mutate it.
func (p *Participant) History() *seqlist.List[Version] { return p.history }

// Engine is a snapshot-isolation MVCC store over a fixed set of
// participants, all sharing one version counter, one active list, and one
// bakery lock guarding both.
type Engine struct {
	c            int64
	verify       bool
	logger       zerolog.Logger
	participants []*Participant
	activeList   *seqlist.List[ActiveEntry]
	versionCtr   atomic.Uint64
	lock         *bakery.Lock
}

// Option configures an Engine constructed by NewEngine.
type Option func(*engineConfig)

type engineConfig struct {
	c       int64
	verify  bool
	logger  zerolog.Logger
	initial []int64
}

// WithConstant sets C, the fixed sum every participant's (a, b) pair must
// satisfy. Defaults to 1024.
func WithConstant(c int64) Option {
	return func(cfg *engineConfig) { cfg.c = c }
}

// WithVerify enables the optional cross-participant invariant check
// performed on every UPDATE (spec.md §4.D step 6).
func WithVerify(verify bool) Option {
	return func(cfg *engineConfig) { cfg.verify = verify }
}

// WithLogger attaches a structured logger used to report protocol errors
// and invariant violations. The default Engine logs nothing.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *engineConfig) { cfg.logger = logger }
}

// WithInitialA seeds each participant's initial a value explicitly; b is
// derived as C-a. len(values) must equal the engine's participant count.
// When omitted, NewEngine cycles through {100, 200, ..., 800} per spec.md
// §8 scenario 2.
func WithInitialA(values []int64) Option {
	return func(cfg *engineConfig) { cfg.initial = values }
}

// NewEngine constructs an Engine with n participants, each seeded with one
// initial version. n must be >= 2.
func NewEngine(n int, opts ...Option) (*Engine, error) {
	if n < 2 {
		return nil, ErrTooFewParticipants
	}

	cfg := engineConfig{c: 1024, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	lock, err := bakery.New(n, bakery.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("mvcc: constructing bakery lock: %w", err)
	}

	e := &Engine{
		c:            cfg.c,
		verify:       cfg.verify,
		logger:       cfg.logger,
		participants: make([]*Participant, n),
		activeList:   seqlist.New[ActiveEntry](),
		lock:         lock,
	}

	defaultAs := []int64{100, 200, 300, 400, 500, 600, 700, 800}
	for i := 0; i < n; i++ {
		var a int64
		if cfg.initial != nil {
			if len(cfg.initial) != n {
				return nil, fmt.Errorf("mvcc: WithInitialA needs %d values, got %d", n, len(cfg.initial))
			}
			a = cfg.initial[i]
		} else {
			a = defaultAs[i%len(defaultAs)]
		}
		v := e.versionCtr.Add(1)
		p := &Participant{id: i, history: seqlist.New[Version]()}
		p.history.Append(Version{A: a, B: cfg.c - a, Vnum: v})
		e.participants[i] = p
	}

	return e, nil
}

// N returns the number of participants.
func (e *Engine) N() int { return len(e.participants) }

// Participant returns the participant at index i.
func (e *Engine) Participant(i int) *Participant { return e.participants[i] }

// Constant returns C.
func (e *Engine) Constant() int64 { return e.c }

// Run spawns one goroutine per participant, each looping UPDATE until ctx
// is cancelled. It returns the first error (other than context
// cancellation) any participant's UPDATE loop produces; errgroup cancels
// the remaining participants' context when that happens.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < len(e.participants); i++ {
		id := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				if err := e.Update(id); err != nil {
					e.logger.Error().Int("tid", id).Err(err).Msg("mvcc: participant update failed")
					return err
				}
			}
		})
	}
	return g.Wait()
}

// Update performs one full UPDATE for participant i: inside the atomic
// region it mints a version number, adds its active-list entry and
// snapshots the active list; outside it, it picks a random peer, resolves
// and folds in the peer's value, optionally verifies the global invariant
// and appends the new version; finally it re-enters the atomic region to
// remove its active-list entry.
func (e *Engine) Update(i int) error {
	p := e.participants[i]

	e.lock.On(i)
	v := e.versionCtr.Add(1)
	e.activeList.Append(ActiveEntry{ParticipantID: i, Vnum: v})
	view := e.snapshotActiveList()
	e.lock.Off(i)

	j := e.pickPeer(i)

	aJRead, err := e.readData(view, j, v)
	if err != nil {
		return fmt.Errorf("mvcc: participant %d reading peer %d at vnum %d: %w", i, j, v, err)
	}

	curA, curB := e.currentAB(p)
	newA := curA + aJRead
	newB := curB - aJRead

	if e.verify {
		if err := e.verifyInvariant(view, v); err != nil {
			e.logger.Error().Int("vnum", int(v)).Err(err).Msg("mvcc: invariant violated")
			return err
		}
	}

	p.history.Append(Version{A: newA, B: newB, Vnum: v})

	e.lock.On(i)
	e.removeActiveEntry(i)
	e.lock.Off(i)

	p.updates.Add(1)
	return nil
}

func (e *Engine) currentAB(p *Participant) (int64, int64) {
	latest := p.history.Back()
	v := latest.Value()
	return v.A, v.B
}

// snapshotActiveList copies the active list into a plain slice. Must be
// called while holding the bakery lock.
func (e *Engine) snapshotActiveList() []ActiveEntry {
	var view []ActiveEntry
	for n := e.activeList.Front(); n != nil; n = n.Next() {
		view = append(view, n.Value())
	}
	return view
}

// removeActiveEntry deletes participant i's active-list entry. Must be
// called while holding the bakery lock.
func (e *Engine) removeActiveEntry(i int) {
	e.activeList.DeleteFirst(func(ae ActiveEntry) bool { return ae.ParticipantID == i })
}

// pickPeer chooses uniformly at random from {0..N-1} \ {i}.
func (e *Engine) pickPeer(i int) int {
	n := len(e.participants)
	j := rand.IntN(n - 1)
	if j >= i {
		j++
	}
	return j
}

// readData resolves which of participant j's recorded a-values an UPDATE
// with new version v, under read-view, should read. It implements spec.md
// §4.D step 4 (read_data), including open question 3's fix: the newest-first
// walk always advances until it finds a version older than bound.
func (e *Engine) readData(view []ActiveEntry, j int, v uint64) (int64, error) {
	bound := v
	for _, ae := range view {
		if ae.ParticipantID == j {
			bound = ae.Vnum
			break
		}
	}

	ver, err := e.resolveVersion(j, bound)
	if err != nil {
		return 0, err
	}
	return ver.A, nil
}

// resolveVersion walks participant j's history newest-first and returns
// the first version strictly older than bound.
func (e *Engine) resolveVersion(j int, bound uint64) (Version, error) {
	p := e.participants[j]
	for n := p.history.Back(); n != nil; n = n.Prev() {
		v := n.Value()
		if v.Vnum < bound {
			return v, nil
		}
	}
	return Version{}, ErrMissingVersion
}

// verifyInvariant resolves every participant's version under (view, v) and
// asserts a+b = C for each.
func (e *Engine) verifyInvariant(view []ActiveEntry, v uint64) error {
	for p := 0; p < len(e.participants); p++ {
		bound := v
		for _, ae := range view {
			if ae.ParticipantID == p {
				bound = ae.Vnum
				break
			}
		}
		ver, err := e.resolveVersion(p, bound)
		if err != nil {
			return fmt.Errorf("mvcc: verifying participant %d: %w", p, err)
		}
		if ver.A+ver.B != e.c {
			return fmt.Errorf("%w: participant %d vnum %d a=%d b=%d c=%d",
				ErrInvariantViolated, p, ver.Vnum, ver.A, ver.B, e.c)
		}
	}
	return nil
}

// Fairness computes the Jain fairness index (Σxᵢ)² / (n·Σxᵢ²) over every
// participant's completed UPDATE count.
func Fairness(participants []*Participant) float64 {
	var sum, sumSq float64
	for _, p := range participants {
		x := float64(p.Updates())
		sum += x
		sumSq += x * x
	}
	if sumSq == 0 {
		return 1
	}
	n := float64(len(participants))
	return (sum * sum) / (n * sumSq)
}
