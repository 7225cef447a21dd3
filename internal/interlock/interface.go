package interlock

import "time"

// Gate is the bounded-concurrency interlock protecting the shared
// request budget. All outbound device calls route through
// CanMakeRequest/Acquire and must Release exactly once on completion.
type Gate interface {
	// CanMakeRequest reports whether a request to the endpoint may be
	// attempted: the budget has room and the endpoint circuit is not
	// open. A counter observed above its bound is treated as corrupted,
	// forcibly reset to zero, and the call proceeds as if the gate were
	// open.
	CanMakeRequest(endpoint string) bool

	// Acquire admits a request if the budget has room, incrementing
	// the in-flight counter atomically.
	Acquire() bool

	// Release returns a budget slot. Releasing below zero is a logic
	// error: it is suppressed and logged rather than corrupting state.
	Release()

	// AbandonRequest returns an admission granted by CanMakeRequest
	// that was never dispatched. Without it a half-open trial slot
	// consumed by the admission check would leak and suppress the
	// endpoint until process restart.
	AbandonRequest(endpoint string)

	// RecordSuccess feeds the endpoint circuit a successful completion.
	RecordSuccess(endpoint string)

	// RecordFailure feeds the endpoint circuit a failed completion.
	RecordFailure(endpoint string)

	// InFlight returns the current budget counter.
	InFlight() int

	// EndpointState returns the circuit state for an endpoint.
	EndpointState(endpoint string) State
}

// State of a per-endpoint circuit. Transitions happen only through
// recorded successes and failures, never manually.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	MaxConcurrent    int
	FailureThreshold int
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    4,
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		MaxCooldown:      15 * time.Minute,
	}
}
