package throttler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	tr := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tr.Allow("203.0.113.7"), "request %d should pass", i)
	}
	assert.False(t, tr.Allow("203.0.113.7"), "burst exhausted")
}

func TestClientsAreIndependent(t *testing.T) {
	tr := New(1, 1)

	assert.True(t, tr.Allow("203.0.113.7"))
	assert.False(t, tr.Allow("203.0.113.7"))
	assert.True(t, tr.Allow("203.0.113.8"), "a different client has its own budget")
}

func TestZeroRPSDisablesLimiting(t *testing.T) {
	tr := New(0, 0)

	for i := 0; i < 100; i++ {
		assert.True(t, tr.Allow("203.0.113.7"))
	}
}
