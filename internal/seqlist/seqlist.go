// Package seqlist implements a doubly linked "ordered sequence" container
// shared by the other kernels in this module: per-participant version
// histories and the global active list in package mvcc, and per-row lock
// buckets and per-transaction held-lock lists in package txstore.
//
// Insertion only ever happens at the tail. Appending is safe for any number
// of concurrent callers: a new node's prev pointer is set to the current
// tail, the node is published by an atomic compare-and-swap of the list's
// tail pointer, and only afterwards is the previous tail's next pointer
// fixed up to point at it. A reader that traverses forward from an
// older node it already holds will either see the new node or not; either
// way, the sequence it observes is consistent with some valid prefix of the
// list, which is exactly the property the owners of this package depend on
// (a version history grows underneath concurrent readers without ever
// invalidating a reader mid-traversal).
//
// Removal and predicate-based deletion are not concurrency-safe: callers
// that mutate the middle of a list must serialize those calls externally
// (a bakery lock, a lock-bucket mutex, or single-writer ownership, depending
// on which caller is doing it).
package seqlist

import "sync/atomic"

// Node is an element of a List. Its identity is stable for its lifetime, so
// callers may retain a *Node[T] returned by Append and pass it back to
// Remove later for O(1) unlinking.
type Node[T any] struct {
	value T
	prev  atomic.Pointer[Node[T]]
	next  atomic.Pointer[Node[T]]
}

// Value returns the node's payload.
func (n *Node[T]) Value() T {
	return n.value
}

// Next returns the following node, or nil if n is the tail.
func (n *Node[T]) Next() *Node[T] {
	if n == nil {
		return nil
	}
	return n.next.Load()
}

// Prev returns the preceding node, or nil if n is the head.
func (n *Node[T]) Prev() *Node[T] {
	if n == nil {
		return nil
	}
	return n.prev.Load()
}

// List is a doubly linked sequence of T. The zero value is an empty, usable
// list.
type List[T any] struct {
	head   atomic.Pointer[Node[T]]
	tail   atomic.Pointer[Node[T]]
	length atomic.Int64
}

// New returns an empty List.
func New[T any]() *List[T] {
	return &List[T]{}
}

// Len returns the number of nodes currently in the list.
func (l *List[T]) Len() int {
	return int(l.length.Load())
}

// Front returns the oldest node (the head), or nil if the list is empty.
func (l *List[T]) Front() *Node[T] {
	return l.head.Load()
}

// Back returns the newest node (the tail), or nil if the list is empty.
func (l *List[T]) Back() *Node[T] {
	return l.tail.Load()
}

// Append allocates a new tail node holding value and publishes it. Safe to
// call from any number of goroutines concurrently, and safe to call
// concurrently with traversal of the list via Front/Back/Next/Prev.
func (l *List[T]) Append(value T) *Node[T] {
	n := &Node[T]{value: value}
	var prev *Node[T]
	for {
		// Link n back to the current tail before publishing it, so a reader
		// that reaches n through Back always finds its predecessor via Prev.
		prev = l.tail.Load()
		n.prev.Store(prev)
		if l.tail.CompareAndSwap(prev, n) {
			break
		}
	}
	if prev == nil {
		l.head.Store(n)
	} else {
		prev.next.Store(n)
	}
	l.length.Add(1)
	return n
}

// Remove unlinks node from the list in O(1). The caller must externally
// serialize Remove against Append and against other Remove/DeleteFirst/Clear
// calls on the same list; it is not safe to call concurrently with itself.
func (l *List[T]) Remove(node *Node[T]) {
	if node == nil {
		return
	}
	prev := node.prev.Load()
	next := node.next.Load()
	if prev != nil {
		prev.next.Store(next)
	} else {
		l.head.Store(next)
	}
	if next != nil {
		next.prev.Store(prev)
	} else {
		l.tail.Store(prev)
	}
	node.prev.Store(nil)
	node.next.Store(nil)
	l.length.Add(-1)
}

// DeleteFirst scans from the head and removes the first node whose value
// satisfies pred, returning that value and true. Returns the zero value and
// false if no node matches. Must be externally serialized against Append
// and other mutating calls.
func (l *List[T]) DeleteFirst(pred func(T) bool) (T, bool) {
	for n := l.head.Load(); n != nil; n = n.Next() {
		if pred(n.value) {
			v := n.value
			l.Remove(n)
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Clear removes every node from the list. Must be externally serialized
// against Append and other mutating calls.
func (l *List[T]) Clear() {
	l.head.Store(nil)
	l.tail.Store(nil)
	l.length.Store(0)
}
