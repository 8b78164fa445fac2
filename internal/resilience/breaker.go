// Package resilience provides the failover primitives used by the speech
// synthesis stage: a three-state circuit breaker and a [Chain] that tries a
// list of named providers in order until one succeeds.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a breaker is open and its cooldown has not
// yet elapsed.
var ErrBreakerOpen = errors.New("breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrBreakerOpen] until the cooldown passes.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through to decide
	// whether the protected provider has recovered.
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

// BreakerConfig tunes a [Breaker]. Zero fields get defaults suited to
// external speech APIs: a couple of consecutive failures trips the breaker
// and probes resume after a short cooldown.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 3.
	Trip int

	// Cooldown is how long the breaker stays open. Default: 20s.
	Cooldown time.Duration

	// Probes is the half-open call budget. Default: 2.
	Probes int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeCalls  int
	probeFails  int
}

// NewBreaker creates a [Breaker], applying defaults for zero config fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
	}
}

// allow reports whether a call may proceed, transitioning open → half-open
// when the cooldown has elapsed. The second return marks a half-open probe.
func (b *Breaker) allow() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("breaker half-open, probing", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probeCalls >= b.probes {
			return false, false
		}
		b.probeCalls++
		return true, true
	default:
		return true, false
	}
}

// record feeds a call outcome back into the breaker.
func (b *Breaker) record(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if probe {
			if b.probeCalls-b.probeFails >= b.probes {
				b.state = StateClosed
				b.failures = 0
				slog.Info("breaker closed after successful probes", "name", b.name)
			}
			return
		}
		b.failures = 0
		return
	}

	b.lastFailure = time.Now()
	if probe {
		// One failed probe is enough to re-open.
		b.probeFails++
		b.state = StateOpen
		b.failures = b.trip
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.trip {
		b.state = StateOpen
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// Do runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Do(fn func() error) error {
	ok, probe := b.allow()
	if !ok {
		return ErrBreakerOpen
	}
	err := fn()
	b.record(err, probe)
	return err
}

// State returns the effective state; an open breaker past its cooldown
// reports half-open (the transition happens on the next call).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
