package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsBadArgs(t *testing.T) {
	assert.Equal(t, 1, run([]string{"-workers", "4", "-chunk", "100"}, os.Stdout, os.Stderr))
	assert.Equal(t, 1, run([]string{"-max", "1000", "-chunk", "100"}, os.Stdout, os.Stderr))
	assert.Equal(t, 1, run([]string{"-max", "1000", "-workers", "4"}, os.Stdout, os.Stderr))
}

func TestIsPrime(t *testing.T) {
	primes := map[uint64]bool{0: false, 1: false, 2: true, 3: true, 4: false, 17: true, 18: false, 97: true}
	for n, want := range primes {
		assert.Equal(t, want, isPrime(n), "n=%d", n)
	}
}

func TestRunCountsPrimesBelow100(t *testing.T) {
	out, err := os.CreateTemp(t.TempDir(), "stdout")
	assert.NoError(t, err)
	defer out.Close()

	code := run([]string{"-max", "100", "-workers", "4", "-chunk", "10"}, out, os.Stderr)
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(out.Name())
	assert.NoError(t, err)
	assert.Equal(t, "25\n", string(got))
}
