package interlock

import (
	"sync"

	"codeberg.org/mutker/ventctl/internal/clock"
	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/logger"
	"codeberg.org/mutker/ventctl/internal/telemetry"
)

type gate struct {
	cfg    Config
	clk    clock.Clock
	logger logger.Logger

	mu       sync.Mutex
	inFlight int
	breakers map[string]*breaker
}

func New(cfg Config, clk clock.Clock, log logger.Logger) (Gate, error) {
	errFactory := errors.New()

	if cfg.MaxConcurrent <= 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "MaxConcurrent must be positive")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "FailureThreshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "Cooldown must be positive")
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}

	return &gate{
		cfg:      cfg,
		clk:      clk,
		logger:   log,
		breakers: make(map[string]*breaker),
	}, nil
}

func (g *gate) CanMakeRequest(endpoint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Stuck-counter detection: the counter can only exceed its bound if
	// an acquisition crashed without releasing. Treat it as corrupted,
	// reset, and proceed as if the gate were open.
	if g.inFlight > g.cfg.MaxConcurrent {
		g.logger.ErrorWithCode(errors.New().New(errors.ErrCounterStuck)).
			Str("severity", "critical").
			Int("in_flight", g.inFlight).
			Int("max_concurrent", g.cfg.MaxConcurrent).
			Msg("Request counter stuck above its bound; forcing reset to zero")
		g.inFlight = 0
		telemetry.InFlightRequests.Set(0)
		telemetry.BudgetResets.Inc()
	}

	b := g.breakerLocked(endpoint)
	if !b.admit(g.clk.Now()) {
		telemetry.BreakerFastFail.WithLabelValues(endpoint).Inc()
		g.logger.Warn().
			Str("endpoint", endpoint).
			Str("state", b.state.String()).
			Msg("Request suppressed by circuit breaker")
		return false
	}

	if g.inFlight >= g.cfg.MaxConcurrent {
		// The breaker trial was not consumed; the endpoint stays
		// half-open for the next admission check.
		b.rollbackTrial()
		telemetry.BudgetDenied.Inc()
		return false
	}

	return true
}

func (g *gate) Acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight >= g.cfg.MaxConcurrent {
		telemetry.BudgetDenied.Inc()
		return false
	}

	g.inFlight++
	telemetry.InFlightRequests.Set(float64(g.inFlight))

	return true
}

func (g *gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight <= 0 {
		g.logger.Warn().
			Int("in_flight", g.inFlight).
			Msg("Release without matching acquire; clamping counter at zero")
		g.inFlight = 0
		telemetry.InFlightRequests.Set(0)
		return
	}

	g.inFlight--
	telemetry.InFlightRequests.Set(float64(g.inFlight))
}

func (g *gate) AbandonRequest(endpoint string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.breakerLocked(endpoint).rollbackTrial()
}

func (g *gate) RecordSuccess(endpoint string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.breakerLocked(endpoint)
	if b.state != StateClosed {
		g.logger.Info().
			Str("endpoint", endpoint).
			Str("from", b.state.String()).
			Msg("Circuit closed after successful request")
	}
	b.recordSuccess(g.cfg.Cooldown)
}

func (g *gate) RecordFailure(endpoint string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.breakerLocked(endpoint)
	opened := b.recordFailure(g.clk.Now(), g.cfg)
	if opened {
		telemetry.BreakerOpened.WithLabelValues(endpoint).Inc()
		g.logger.Warn().
			Str("endpoint", endpoint).
			Int("failures", b.failures).
			Dur("cooldown", b.cooldown).
			Msg("Circuit opened for endpoint")
	}
}

func (g *gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *gate) EndpointState(endpoint string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breakerLocked(endpoint).state
}

func (g *gate) breakerLocked(endpoint string) *breaker {
	b, ok := g.breakers[endpoint]
	if !ok {
		b = newBreaker(g.cfg.Cooldown)
		g.breakers[endpoint] = b
	}

	return b
}
