// Package resilience provides the circuit breaker and retry primitives used
// around every unreliable external dependency (providers, reputation sources).
package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/gocatalog/internal/util"
)

// ErrCircuitOpen is returned by guarded calls while the breaker rejects traffic
var ErrCircuitOpen = errors.New("circuit open")

// State is the breaker automaton state
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

// BreakerConfig holds the three tuning constants of a breaker
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultBreakerConfig returns 5 failures to open, 2 successes to close, 60s open window
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

func (c BreakerConfig) normalized() BreakerConfig {
	def := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// CircuitBreaker guards one dependency. All methods are safe for concurrent use;
// IsOpen counts as a write because it may move Open to HalfOpen.
type CircuitBreaker struct {
	mu          sync.Mutex
	name        string
	cfg         BreakerConfig
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive config values fall back to defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		cfg:  cfg.normalized(),
		now:  time.Now,
	}
}

// Name returns the guarded dependency name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen reports whether calls must be rejected. Once the open window has
// elapsed the breaker moves to HalfOpen and lets calls through again.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return false
	}
	if cb.now().Sub(cb.lastFailure) > cb.cfg.Timeout {
		cb.transitionLocked(StateHalfOpen)
		cb.successes = 0
		return false
	}
	return true
}

// RecordSuccess must be called once after every successful guarded call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transitionLocked(StateClosed)
			cb.failures = 0
			cb.successes = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure must be called once after every failed guarded call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.lastFailure = cb.now()
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.lastFailure = cb.now()
		cb.successes = 0
		cb.transitionLocked(StateOpen)
	case StateOpen:
		cb.lastFailure = cb.now()
	}
}

// State returns the current state without triggering the lazy HalfOpen transition
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the failure and success counters
func (cb *CircuitBreaker) Counts() (failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.successes
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if to == StateOpen {
		util.Warn("Circuit breaker opened", "dependency", cb.name, "failures", cb.failures, "from", from.String())
		return
	}
	util.Debug("Circuit breaker transition", "dependency", cb.name, "from", from.String(), "to", to.String())
}

// BreakerStatus is a point-in-time view of one breaker
type BreakerStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
}

// Breakers owns one breaker per dependency name. Build it once at startup and
// pass it to every component that guards calls.
type Breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates an empty set sharing cfg
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{
		cfg:      cfg.normalized(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it on first use. A nil set returns nil.
func (b *Breakers) Get(name string) *CircuitBreaker {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, b.cfg)
		b.breakers[name] = cb
	}
	return cb
}

// Snapshot returns the status of every breaker, sorted by name
func (b *Breakers) Snapshot() []BreakerStatus {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(b.breakers))
	for _, cb := range b.breakers {
		list = append(list, cb)
	}
	b.mu.Unlock()

	out := make([]BreakerStatus, 0, len(list))
	for _, cb := range list {
		f, s := cb.Counts()
		out = append(out, BreakerStatus{Name: cb.Name(), State: cb.State().String(), Failures: f, Successes: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
