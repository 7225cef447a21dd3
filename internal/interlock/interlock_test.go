package interlock

import (
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ventctl/internal/clock"
	"codeberg.org/mutker/ventctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, cfg Config) (*gate, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	g, err := New(cfg, clk, logger.Default())
	require.NoError(t, err)

	return g.(*gate), clk
}

func TestAcquireReleaseBounds(t *testing.T) {
	g, _ := newTestGate(t, Config{
		MaxConcurrent:    3,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	assert.True(t, g.Acquire())
	assert.True(t, g.Acquire())
	assert.True(t, g.Acquire())
	assert.False(t, g.Acquire(), "budget exhausted at MaxConcurrent")
	assert.Equal(t, 3, g.InFlight())

	g.Release()
	assert.Equal(t, 2, g.InFlight())
	assert.True(t, g.Acquire())
}

func TestConcurrentAcquireReleaseNeverExceedsBound(t *testing.T) {
	const maxConcurrent = 4
	g, _ := newTestGate(t, Config{
		MaxConcurrent:    maxConcurrent,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if g.Acquire() {
					n := g.InFlight()
					if n < 0 || n > maxConcurrent {
						t.Errorf("in-flight counter out of bounds: %d", n)
					}
					g.Release()
				}
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, g.InFlight(), 0)
	assert.LessOrEqual(t, g.InFlight(), maxConcurrent)
}

func TestReleaseBelowZeroIsSuppressed(t *testing.T) {
	g, _ := newTestGate(t, DefaultConfig())

	g.Release()
	g.Release()
	assert.Equal(t, 0, g.InFlight(), "excess releases never drive the counter negative")

	assert.True(t, g.Acquire())
	assert.Equal(t, 1, g.InFlight())
}

func TestStuckCounterSelfHeals(t *testing.T) {
	g, _ := newTestGate(t, Config{
		MaxConcurrent:    4,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	// Simulate a crashed acquisition path leaving the counter stuck.
	g.mu.Lock()
	g.inFlight = 9
	g.mu.Unlock()

	assert.True(t, g.CanMakeRequest("vent-1"), "admission proceeds after the reset")
	assert.Equal(t, 0, g.InFlight(), "stuck counter is forced back to zero")
}

func TestCounterAtBoundIsNotStuck(t *testing.T) {
	g, _ := newTestGate(t, Config{
		MaxConcurrent:    2,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	require.True(t, g.Acquire())
	require.True(t, g.Acquire())

	assert.False(t, g.CanMakeRequest("vent-1"), "full budget denies admission")
	assert.Equal(t, 2, g.InFlight(), "a full-but-valid counter must not be reset")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g, clk := newTestGate(t, Config{
		MaxConcurrent:    4,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	g.RecordFailure("vent-1")
	g.RecordFailure("vent-1")
	assert.Equal(t, StateClosed, g.EndpointState("vent-1"))
	assert.True(t, g.CanMakeRequest("vent-1"))

	g.RecordFailure("vent-1")
	assert.Equal(t, StateOpen, g.EndpointState("vent-1"))
	assert.False(t, g.CanMakeRequest("vent-1"), "open circuit fast-fails without I/O")

	// Other endpoints are unaffected.
	assert.True(t, g.CanMakeRequest("vent-2"))

	// After the cooldown the circuit admits a single trial request.
	clk.Advance(time.Minute + time.Second)
	assert.True(t, g.CanMakeRequest("vent-1"))
	assert.Equal(t, StateHalfOpen, g.EndpointState("vent-1"))
	assert.False(t, g.CanMakeRequest("vent-1"), "only one trial while half-open")

	g.RecordSuccess("vent-1")
	assert.Equal(t, StateClosed, g.EndpointState("vent-1"))
	assert.True(t, g.CanMakeRequest("vent-1"))
}

func TestHalfOpenFailureReopensWithExtendedWindow(t *testing.T) {
	g, clk := newTestGate(t, Config{
		MaxConcurrent:    4,
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		MaxCooldown:      10 * time.Minute,
	})

	g.RecordFailure("vent-1")
	g.RecordFailure("vent-1")
	require.Equal(t, StateOpen, g.EndpointState("vent-1"))

	clk.Advance(time.Minute + time.Second)
	require.True(t, g.CanMakeRequest("vent-1"))
	g.RecordFailure("vent-1")
	require.Equal(t, StateOpen, g.EndpointState("vent-1"))

	// The base cooldown is no longer enough.
	clk.Advance(time.Minute + time.Second)
	assert.False(t, g.CanMakeRequest("vent-1"))

	clk.Advance(time.Minute)
	assert.True(t, g.CanMakeRequest("vent-1"), "doubled window has elapsed")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	g, _ := newTestGate(t, Config{
		MaxConcurrent:    4,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	})

	g.RecordFailure("vent-1")
	g.RecordFailure("vent-1")
	g.RecordSuccess("vent-1")
	g.RecordFailure("vent-1")
	g.RecordFailure("vent-1")

	assert.Equal(t, StateClosed, g.EndpointState("vent-1"),
		"consecutive failure count restarts after a success")
}

func TestAbandonRequestReturnsHalfOpenTrial(t *testing.T) {
	g, clk := newTestGate(t, Config{
		MaxConcurrent:    4,
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	})

	g.RecordFailure("vent-1")
	require.Equal(t, StateOpen, g.EndpointState("vent-1"))

	// The admission check consumes the single half-open trial; if the
	// request is then never dispatched, abandoning it must hand the
	// trial back or the endpoint stays suppressed forever.
	clk.Advance(2 * time.Minute)
	require.True(t, g.CanMakeRequest("vent-1"))
	require.False(t, g.CanMakeRequest("vent-1"))

	g.AbandonRequest("vent-1")
	assert.True(t, g.CanMakeRequest("vent-1"), "abandoned trial is available again")
}

func TestHalfOpenTrialNotConsumedWhenBudgetFull(t *testing.T) {
	g, clk := newTestGate(t, Config{
		MaxConcurrent:    1,
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	})

	g.RecordFailure("vent-1")
	require.Equal(t, StateOpen, g.EndpointState("vent-1"))

	require.True(t, g.Acquire())
	clk.Advance(2 * time.Minute)

	assert.False(t, g.CanMakeRequest("vent-1"), "budget is full")
	g.Release()
	assert.True(t, g.CanMakeRequest("vent-1"), "trial slot was preserved")
}
