package controller

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/mutker/ventctl/internal/device"
	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/interlock"
	"codeberg.org/mutker/ventctl/internal/telemetry"
)

// ApplyVentTargets sends each target opening to its vent concurrently
// and waits for all dispatches to settle. One vent failing never
// aborts the others. It returns how many commands were applied, how
// many were skipped because the device disappeared or its circuit was
// open, and how many exhausted their retries.
func (c *Controller) ApplyVentTargets(ctx context.Context, targets map[string]int) (applied, skipped, failed int) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for room, percent := range targets {
		wg.Add(1)
		go func(room string, percent int) {
			defer wg.Done()

			err := c.dispatch(ctx, room, percent)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case device.IsMissing(err) || errors.Is(err, errSuppressed):
				skipped++
			default:
				failed++
			}
		}(room, percent)
	}

	wg.Wait()

	return applied, skipped, failed
}

// errSuppressed marks dispatches dropped because the endpoint's
// circuit was open. They are skips, not failures: the breaker has
// already accounted for the underlying fault.
var errSuppressed = errors.New().New(errors.ErrCircuitOpen)

// dispatch sends one vent command, retrying transient failures with
// doubling backoff. Every acquired budget slot is released exactly
// once regardless of outcome.
func (c *Controller) dispatch(ctx context.Context, room string, percent int) error {
	errFactory := errors.New()
	backoff := c.cfg.Backoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			telemetry.DispatchRetries.Inc()
			c.clk.Sleep(backoff)
			backoff *= 2
		}
		if ctx.Err() != nil {
			return errFactory.Wrap(errors.ErrDispatchFailed, ctx.Err())
		}

		if !c.gate.CanMakeRequest(room) {
			if c.gate.EndpointState(room) == interlock.StateOpen {
				c.log.Warn().
					Str("room", room).
					Msg("Circuit open; leaving vent at current opening until cooldown")
				return errSuppressed
			}
			// Budget full: back off and retry the slot.
			continue
		}
		if !c.gate.Acquire() {
			// Lost the slot between the admission check and here; hand
			// back any half-open trial consumed by the check.
			c.gate.AbandonRequest(room)
			continue
		}

		err := c.send(ctx, room, percent)
		if err == nil {
			c.gate.RecordSuccess(room)
			c.log.Debug().
				Str("room", room).
				Int("percent", percent).
				Msg("Vent opening applied")
			return nil
		}

		if device.IsMissing(err) {
			// The hub answered; the circuit tracks endpoint
			// reachability, not whether the room still exists.
			c.gate.RecordSuccess(room)
			c.log.Warn().
				Str("room", room).
				Err(err).
				Msg("Vent disappeared mid-cycle; skipping")
			return err
		}

		c.gate.RecordFailure(room)
		c.log.Warn().
			Str("room", room).
			Int("attempt", attempt+1).
			Int("max_attempts", c.cfg.MaxRetries+1).
			Err(err).
			Msg("Vent command failed")
	}

	telemetry.DispatchFailures.WithLabelValues(room).Inc()
	err := errFactory.WithData(errors.ErrDispatchFailed, fmt.Sprintf("room=%s percent=%d", room, percent))
	c.log.ErrorWithCode(err).
		Str("room", room).
		Int("percent", percent).
		Msg("Vent command exhausted retries; check device connectivity and rerun with --debug for request traces")

	return err
}

// send performs the actual device call under the dispatch timeout,
// releasing the budget slot on every exit path.
func (c *Controller) send(ctx context.Context, room string, percent int) error {
	defer c.gate.Release()

	cctx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	defer cancel()

	return c.commander.SetOpening(cctx, room, percent)
}
