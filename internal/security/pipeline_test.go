package security

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCheck counts invocations and returns a fixed decision.
type countingCheck struct {
	decision Decision
	calls    int
}

func (c *countingCheck) Name() string { return "counting" }

func (c *countingCheck) Evaluate(_ *Request) Decision {
	c.calls++
	return c.decision
}

func TestPipelineAllChecksPass(t *testing.T) {
	first := &countingCheck{}
	second := &countingCheck{}
	pipe := NewPipeline(first, second)

	d := pipe.Evaluate(newRequest("10.0.0.1"))
	assert.False(t, d.Rejected())
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestPipelineShortCircuits(t *testing.T) {
	first := &countingCheck{}
	rejecting := &countingCheck{decision: Decision{Status: http.StatusForbidden, Reason: ReasonBlacklistedIP}}
	never := &countingCheck{}
	pipe := NewPipeline(first, rejecting, never)

	d := pipe.Evaluate(newRequest("10.0.0.1"))
	require.True(t, d.Rejected())
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, ReasonBlacklistedIP, d.Reason)

	// Checks after the first rejection are never invoked.
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, rejecting.calls)
	assert.Equal(t, 0, never.calls)
}

func TestPipelineFirstRejectionWins(t *testing.T) {
	blacklisted := &countingCheck{decision: Decision{Status: http.StatusForbidden, Reason: ReasonBlacklistedIP}}
	limited := &countingCheck{decision: Decision{Status: http.StatusTooManyRequests, Reason: ReasonTooManyRequests}}
	pipe := NewPipeline(blacklisted, limited)

	d := pipe.Evaluate(newRequest("10.0.0.1"))
	assert.Equal(t, ReasonBlacklistedIP, d.Reason)
	assert.Equal(t, 0, limited.calls)
}

func TestEmptyPipelineAllows(t *testing.T) {
	pipe := NewPipeline()
	assert.False(t, pipe.Evaluate(newRequest("10.0.0.1")).Rejected())
	assert.Equal(t, 0, pipe.Len())
}
