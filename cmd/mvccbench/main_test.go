package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsMissingNumThread(t *testing.T) {
	code := run([]string{"-d", "1"}, os.Stdout, os.Stderr)
	assert.Equal(t, 1, code)
}

func TestRunRejectsMissingDuration(t *testing.T) {
	code := run([]string{"-n", "4"}, os.Stdout, os.Stderr)
	assert.Equal(t, 1, code)
}

func TestRunRejectsSingleParticipant(t *testing.T) {
	code := run([]string{"-n", "1", "-d", "1"}, os.Stdout, os.Stderr)
	assert.Equal(t, 1, code)
}

func TestRunSucceedsForShortDuration(t *testing.T) {
	code := run([]string{"-n", "4", "-d", "1", "-v"}, os.Stdout, os.Stderr)
	assert.Equal(t, 0, code)
}
