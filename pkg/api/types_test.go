package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvKeys(t *testing.T) {
	cfg := &RunConfiguration{
		Env:      map[string]string{"B": "1", "A": "2", "Z": "3", "C": "4"},
		EnvOrder: []string{"Z", "B", "GONE", "Z"},
	}

	// declared keys first, overlay-only keys after them sorted
	assert.Equal(t, []string{"Z", "B", "A", "C"}, cfg.EnvKeys())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, RunInterrupted.Terminal())
	assert.False(t, RunRunning.Terminal())
}
