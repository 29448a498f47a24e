// Package circuitbreaker guards provider calls against cascading failures.
// A breaker that has seen too many consecutive failures fails fast with
// domain.ErrCircuitOpen instead of letting requests pile up against a dead
// upstream.
//
// States:
//   - closed: requests pass through
//   - open: requests are rejected until the cooldown elapses
//   - half-open: probing recovery, a run of successes closes the circuit
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Breaker is satisfied by both the in-memory and Redis-backed implementations.
type Breaker interface {
	// Allow reports whether a request may proceed. Returns
	// domain.ErrCircuitOpen while the circuit is open.
	Allow(ctx context.Context) error

	// RecordSuccess notes a successful call. In half-open state enough
	// successes close the circuit.
	RecordSuccess(ctx context.Context)

	// RecordFailure notes a failed call. Enough failures open the circuit.
	RecordFailure(ctx context.Context)

	State(ctx context.Context) State
}

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
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes needed to close
	Cooldown         time.Duration // open duration before probing
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// MemoryBreaker is a single-process breaker guarded by a mutex.
type MemoryBreaker struct {
	mu          sync.RWMutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	config      Config
	now         func() time.Time
}

func NewMemory(cfg Config) *MemoryBreaker {
	return &MemoryBreaker{
		state:  StateClosed,
		config: cfg,
		now:    time.Now,
	}
}

func (b *MemoryBreaker) Allow(ctx context.Context) error {
	b.mu.RLock()
	state := b.state
	lastFailure := b.lastFailure
	b.mu.RUnlock()

	if state != StateOpen {
		return nil
	}

	if b.now().Sub(lastFailure) > b.config.Cooldown {
		b.mu.Lock()
		if b.state == StateOpen {
			b.state = StateHalfOpen
			b.successes = 0
		}
		b.mu.Unlock()
		return nil
	}

	return domain.ErrCircuitOpen
}

func (b *MemoryBreaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *MemoryBreaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	}
}

func (b *MemoryBreaker) State(ctx context.Context) State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *MemoryBreaker) Failures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}

// Manager holds one breaker per provider, created lazily.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]Breaker
	config   Config
	factory  func(providerID string) Breaker
}

type ManagerOption func(*Manager)

// WithRedis makes the manager hand out Redis-backed breakers so that the
// open/closed decision is shared across gateway instances. Falls back to
// in-memory per provider if Redis is unreachable at creation time.
func WithRedis(redisURL string) ManagerOption {
	return func(m *Manager) {
		m.factory = func(providerID string) Breaker {
			b, err := NewRedis(redisURL, providerID, m.config)
			if err != nil {
				return NewMemory(m.config)
			}
			return b
		}
	}
}

func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		breakers: make(map[string]Breaker),
		config:   cfg,
		factory: func(providerID string) Breaker {
			return NewMemory(cfg)
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Get returns the breaker for a provider, creating one on first use.
func (m *Manager) Get(providerID string) Breaker {
	m.mu.RLock()
	b, ok := m.breakers[providerID]
	m.mu.RUnlock()

	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.breakers[providerID]; ok {
		return existing
	}

	b = m.factory(providerID)
	m.breakers[providerID] = b
	return b
}

// States reports the current state of every known breaker, keyed by provider.
func (m *Manager) States() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ctx := context.Background()
	states := make(map[string]string, len(m.breakers))
	for id, b := range m.breakers {
		states[id] = b.State(ctx).String()
	}
	return states
}
