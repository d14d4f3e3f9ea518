package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultContextOptions(t *testing.T) {
	opts := DefaultContextOptions()
	assert.Contains(t, opts.UserAgent, "Mozilla/5.0")
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 2000, opts.ViewportHeight)
}

func TestChromiumArgsDisableSandboxAndShm(t *testing.T) {
	// These two switches are load-bearing under Docker; the rest are tuning.
	assert.Contains(t, chromiumArgs, "--no-sandbox")
	assert.Contains(t, chromiumArgs, "--disable-dev-shm-usage")
}
