// Package circuitbreaker provides a per-key circuit breaker with
// closed, open, and half-open state transitions. The guard wraps one
// around each remote risk oracle endpoint so an unavailable oracle stops
// costing a full timeout per validation.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: requests flow through
	StateOpen                  // Tripped: requests are rejected
	StateHalfOpen              // Probing: one request allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold    = 5
	defaultOpenDuration = 30 * time.Second
)

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chainguard",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// circuit is the per-key state. Guarded by Breaker.mu.
type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks consecutive failures per key. A key trips open at the
// failure threshold, rejects requests for openDuration, then lets a
// single probe through in half-open.
type Breaker struct {
	mu           sync.Mutex
	circuits     map[string]*circuit
	threshold    int
	openDuration time.Duration
	onTransition func(key string, from, to State)
}

// New creates a breaker tripping after threshold consecutive failures
// and staying open for openDuration. Non-positive arguments fall back to
// the defaults.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if openDuration <= 0 {
		openDuration = defaultOpenDuration
	}
	return &Breaker{
		circuits:     make(map[string]*circuit),
		threshold:    threshold,
		openDuration: openDuration,
	}
}

// OnTransition registers a callback fired (on its own goroutine) for
// every state change.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a request to key may proceed. An open circuit
// whose openDuration has elapsed moves to half-open and admits exactly
// one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		// Never-seen keys are closed.
		return true
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.lastFailure) < b.openDuration {
			return false
		}
		b.transition(c, key, StateHalfOpen)
		return true
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		b.transition(c, key, StateClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failure. Reaching the threshold while closed,
// or any failure while half-open, trips the circuit open.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.failures++
	c.lastFailure = time.Now()

	switch {
	case c.state == StateHalfOpen:
		b.transition(c, key, StateOpen)
	case c.state == StateClosed && c.failures >= b.threshold:
		b.transition(c, key, StateOpen)
	}
}

// State returns the current state for a key, StateClosed when never seen.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// transition moves a circuit to a new state, bumps the transition
// counter, and fires the callback. Caller holds b.mu.
func (b *Breaker) transition(c *circuit, key string, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	cbStateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.onTransition != nil {
		go b.onTransition(key, from, to)
	}
}
