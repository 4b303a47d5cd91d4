package bakery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveN(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-1)
	assert.Error(t, err)
}

func TestOnOffIsNoopForSingleParticipant(t *testing.T) {
	l, err := New(1)
	require.NoError(t, err)
	l.On(0)
	l.Off(0)
	l.On(0)
	l.Off(0)
}

// TestMutualExclusion is a scaled-down version of the literal end-to-end
// scenario from the spec: N threads each increment a shared counter inside
// the critical section. No increment should be lost.
func TestMutualExclusion(t *testing.T) {
	const n = 4
	const itersPerParticipant = 5000

	l, err := New(n)
	require.NoError(t, err)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < itersPerParticipant; j++ {
				l.On(id)
				counter++
				l.Off(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n*itersPerParticipant, counter)
}

func TestStarvationFreeProgress(t *testing.T) {
	const n = 8
	l, err := New(n)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				l.On(id)
				done[id]++
				l.Off(id)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, 500, done[i], "participant %d starved", i)
	}
}
