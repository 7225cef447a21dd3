package interlock

import "time"

// breaker holds one endpoint's circuit. All fields are guarded by the
// owning gate's mutex.
type breaker struct {
	state    State
	failures int
	openedAt time.Time
	cooldown time.Duration
	trial    bool
}

func newBreaker(cooldown time.Duration) *breaker {
	return &breaker{
		state:    StateClosed,
		cooldown: cooldown,
	}
}

// admit decides whether a request may be attempted now. While open, the
// circuit fast-fails until the cooldown window elapses; the first
// admission afterwards moves it to half-open and consumes the single
// trial slot.
func (b *breaker) admit(now time.Time) bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trial = true
		return true
	case StateHalfOpen:
		if b.trial {
			// A trial request is already pending.
			return false
		}
		b.trial = true
		return true
	default:
		return false
	}
}

// rollbackTrial returns an unconsumed trial slot when admission was
// refused for a reason other than the circuit itself.
func (b *breaker) rollbackTrial() {
	if b.state == StateHalfOpen {
		b.trial = false
	}
}

func (b *breaker) recordSuccess(baseCooldown time.Duration) {
	b.state = StateClosed
	b.failures = 0
	b.cooldown = baseCooldown
	b.trial = false
}

// recordFailure returns true when the failure opened (or reopened) the
// circuit. A half-open failure reopens with an extended window.
func (b *breaker) recordFailure(now time.Time, cfg Config) bool {
	b.failures++

	switch b.state {
	case StateHalfOpen:
		b.cooldown *= 2
		if b.cooldown > cfg.MaxCooldown {
			b.cooldown = cfg.MaxCooldown
		}
		b.state = StateOpen
		b.openedAt = now
		b.trial = false
		return true
	case StateClosed:
		if b.failures >= cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
			return true
		}
	case StateOpen:
		// Failures recorded while already open keep the window as is.
	}

	return false
}
