package seqlist

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrder(t *testing.T) {
	l := New[int]()
	for i := 0; i < 5; i++ {
		l.Append(i)
	}
	require.Equal(t, 5, l.Len())

	var got []int
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value())
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	var backwards []int
	for n := l.Back(); n != nil; n = n.Prev() {
		backwards = append(backwards, n.Value())
	}
	assert.Equal(t, []int{4, 3, 2, 1, 0}, backwards)
}

func TestRemoveMiddle(t *testing.T) {
	l := New[string]()
	l.Append("a")
	mid := l.Append("b")
	l.Append("c")

	l.Remove(mid)
	require.Equal(t, 2, l.Len())

	var got []string
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value())
	}
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestRemoveHeadAndTail(t *testing.T) {
	l := New[int]()
	a := l.Append(1)
	l.Append(2)
	c := l.Append(3)

	l.Remove(a)
	l.Remove(c)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, 2, l.Front().Value())
	assert.Equal(t, 2, l.Back().Value())
}

func TestDeleteFirst(t *testing.T) {
	l := New[int]()
	l.Append(1)
	l.Append(2)
	l.Append(3)
	l.Append(2)

	v, ok := l.DeleteFirst(func(x int) bool { return x == 2 })
	require.True(t, ok)
	assert.Equal(t, 2, v)
	require.Equal(t, 3, l.Len())

	var got []int
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value())
	}
	assert.Equal(t, []int{1, 3, 2}, got)

	_, ok = l.DeleteFirst(func(x int) bool { return x == 99 })
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	l := New[int]()
	l.Append(1)
	l.Append(2)
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Front())
	assert.Nil(t, l.Back())
}

func TestConcurrentAppend(t *testing.T) {
	l := New[int]()
	const goroutines = 32
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				l.Append(base*perGoroutine + i)
			}
		}(g)
	}
	wg.Wait()

	require.Equal(t, goroutines*perGoroutine, l.Len())

	var got []int
	for n := l.Front(); n != nil; n = n.Next() {
		got = append(got, n.Value())
	}
	require.Len(t, got, goroutines*perGoroutine)
	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
