package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned without running the call while the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrProbeLimit is returned in half-open state once all probes are in flight.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Policy configures when a breaker trips and how it recovers.
type Policy struct {
	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32

	// FailureRatio trips the breaker when the failure share within the
	// window exceeds it, once MinRequests calls were made. Zero disables.
	FailureRatio float64
	MinRequests  uint32

	// Window clears closed-state statistics periodically. Zero never clears.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// HalfOpenProbes is both the concurrent probe limit and the number of
	// successes that close the breaker again.
	HalfOpenProbes uint32

	OnTransition func(name string, from, to State)
}

// Stats is a snapshot of breaker counters for the current window.
type Stats struct {
	State                State     `json:"state"`
	Requests             uint32    `json:"requests"`
	Successes            uint32    `json:"successes"`
	Failures             uint32    `json:"failures"`
	ConsecutiveFailures  uint32    `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32    `json:"consecutive_successes"`
	Since                time.Time `json:"since"`
}

// Breaker is a three-state circuit breaker safe for concurrent use.
type Breaker struct {
	name   string
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	state    State
	stats    Stats
	inFlight uint32
	epoch    uint64
	deadline time.Time
}

// New creates a closed breaker. Zero policy fields get defaults.
func New(name string, policy Policy) *Breaker {
	if policy.FailureThreshold == 0 {
		policy.FailureThreshold = 5
	}
	if policy.Cooldown == 0 {
		policy.Cooldown = 30 * time.Second
	}
	if policy.HalfOpenProbes == 0 {
		policy.HalfOpenProbes = 1
	}

	b := &Breaker{name: name, policy: policy, now: time.Now}
	b.enter(StateClosed, b.now())
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying any due cooldown or window
// rollover first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	return b.state
}

// Stats returns the current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	return b.stats
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.enter(StateClosed, b.now())
}

// Do runs fn if the breaker admits it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Call runs fn through the breaker and returns its result. A panic in fn
// counts as a failure and is re-raised.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	epoch, err := b.admit()
	if err != nil {
		return zero, err
	}

	ok := false
	defer func() {
		if r := recover(); r != nil {
			b.record(epoch, false)
			panic(r)
		}
		b.record(epoch, ok)
	}()

	v, err := fn()
	ok = err == nil
	return v, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())

	switch b.state {
	case StateOpen:
		return b.epoch, ErrOpen
	case StateHalfOpen:
		if b.inFlight >= b.policy.HalfOpenProbes {
			return b.epoch, ErrProbeLimit
		}
	}

	b.inFlight++
	b.stats.Requests++
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if epoch != b.epoch {
		// The call started under a previous state; its outcome is stale.
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}

	if success {
		b.stats.Successes++
		b.stats.ConsecutiveSuccesses++
		b.stats.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.stats.ConsecutiveSuccesses >= b.policy.HalfOpenProbes {
			b.enter(StateClosed, now)
		}
		return
	}

	b.stats.Failures++
	b.stats.ConsecutiveFailures++
	b.stats.ConsecutiveSuccesses = 0

	switch b.state {
	case StateHalfOpen:
		b.enter(StateOpen, now)
	case StateClosed:
		if b.shouldTrip() {
			b.enter(StateOpen, now)
		}
	}
}

func (b *Breaker) shouldTrip() bool {
	if b.stats.ConsecutiveFailures >= b.policy.FailureThreshold {
		return true
	}
	if b.policy.FailureRatio > 0 && b.stats.Requests >= b.policy.MinRequests && b.stats.Requests > 0 {
		return float64(b.stats.Failures)/float64(b.stats.Requests) > b.policy.FailureRatio
	}
	return false
}

// advance applies time-driven transitions. Caller holds mu.
func (b *Breaker) advance(now time.Time) {
	if b.deadline.IsZero() || now.Before(b.deadline) {
		return
	}

	switch b.state {
	case StateOpen:
		b.enter(StateHalfOpen, now)
	case StateClosed:
		b.stats = Stats{State: StateClosed, Since: b.stats.Since}
		b.epoch++
		b.deadline = now.Add(b.policy.Window)
	}
}

// enter switches state and starts a fresh epoch. Caller holds mu.
func (b *Breaker) enter(to State, now time.Time) {
	from := b.state
	b.state = to
	b.stats = Stats{State: to, Since: now}
	b.inFlight = 0
	b.epoch++

	switch to {
	case StateOpen:
		b.deadline = now.Add(b.policy.Cooldown)
	case StateClosed:
		b.deadline = time.Time{}
		if b.policy.Window > 0 {
			b.deadline = now.Add(b.policy.Window)
		}
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if from != to && b.policy.OnTransition != nil {
		b.policy.OnTransition(b.name, from, to)
	}
}
