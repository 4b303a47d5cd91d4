// Package bakery implements Lamport's Bakery algorithm: software-only mutual
// exclusion for a fixed, known set of N participants, requiring no atomic
// compare-and-swap.
//
// Each participant i owns two slots, choosing[i] and label[i], which every
// other participant may read but only i may write. Entering the critical
// section is a four-step protocol:
//
//  1. Set choosing[i].
//  2. Compute the maximum label currently held by any participant and take
//     one more than that as label[i].
//  3. Clear choosing[i].
//  4. For every other participant j, first spin while j is choosing a label
//     (so two participants never race on "the current maximum"), then spin
//     while j holds a smaller (label, id) pair than i's own — ties broken by
//     participant id.
//
// Exiting is a single step: set label[i] back to zero.
//
// Every choosing/label slot is a typed atomic value rather than a plain
// field. That is this package's answer to the algorithm's memory-ordering
// requirement: a participant's write to its own slot must be visible to
// every other participant's subsequent read of that slot, and atomic
// load/store already carries the acquire/release semantics a C
// implementation would otherwise need explicit fences to get right.
package bakery

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Lock is a Bakery mutual-exclusion lock for a fixed number of participants,
// identified by the zero-based indices 0..N-1.
type Lock struct {
	n        int
	choosing []atomic.Bool
	label    []atomic.Uint64
	logger   zerolog.Logger
}

// Option configures a Lock constructed by New.
type Option func(*Lock)

// WithLogger attaches a structured logger used for diagnostic tracing of
// lock acquisitions. The default Lock logs nothing.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lock) { l.logger = logger }
}

// New allocates a Bakery lock for n participants. It returns an error if
// n <= 0, per the algorithm's initialization contract.
func New(n int, opts ...Option) (*Lock, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bakery: number of participants must be > 0, got %d", n)
	}
	l := &Lock{
		n:        n,
		choosing: make([]atomic.Bool, n),
		label:    make([]atomic.Uint64, n),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// N returns the number of participants the lock was constructed for.
func (l *Lock) N() int {
	return l.n
}

func (l *Lock) maxLabel() uint64 {
	var max uint64
	for j := 0; j < l.n; j++ {
		if v := l.label[j].Load(); v > max {
			max = v
		}
	}
	return max
}

// On acquires the lock on behalf of participant i, blocking (via a spin
// loop, as the algorithm prescribes — no suspension point exists here)
// until no other participant has a strictly smaller (label, id) pair.
// The caller must pass an i in 0..N-1; i must be the same value across the
// lifetime of one logical participant.
func (l *Lock) On(i int) {
	l.choosing[i].Store(true)
	labelI := l.maxLabel() + 1
	l.label[i].Store(labelI)
	l.choosing[i].Store(false)

	for j := 0; j < l.n; j++ {
		if j == i {
			continue
		}
		for l.choosing[j].Load() {
			// spin: j is mid-computation of its own label
		}
		for {
			labelJ := l.label[j].Load()
			if labelJ == 0 || labelJ > labelI || (labelJ == labelI && j >= i) {
				break
			}
		}
	}
	l.logger.Trace().Int("participant", i).Uint64("label", labelI).Msg("bakery: entered critical section")
}

// Off releases the lock on behalf of participant i.
func (l *Lock) Off(i int) {
	l.label[i].Store(0)
	l.logger.Trace().Int("participant", i).Msg("bakery: left critical section")
}
