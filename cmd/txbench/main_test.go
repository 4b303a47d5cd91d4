package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsBadArgs(t *testing.T) {
	assert.Equal(t, 1, run([]string{"-n", "4", "-r", "5", "-d", "1"}, os.Stdout, os.Stderr))
	assert.Equal(t, 1, run([]string{"-t", "100", "-r", "5", "-d", "1"}, os.Stdout, os.Stderr))
	assert.Equal(t, 1, run([]string{"-t", "100", "-n", "4", "-r", "11", "-d", "1"}, os.Stdout, os.Stderr))
	assert.Equal(t, 1, run([]string{"-t", "100", "-n", "4", "-r", "5"}, os.Stdout, os.Stderr))
}

func TestRunSucceedsForShortDuration(t *testing.T) {
	code := run([]string{"-t", "100", "-n", "4", "-r", "5", "-d", "1"}, os.Stdout, os.Stderr)
	assert.Equal(t, 0, code)
}
