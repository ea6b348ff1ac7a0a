package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// BreakerConfig tunes a named circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures, holds open for
// 30 seconds, and probes with at most 1 call while half-open.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker is a three-state circuit breaker. Closed counts consecutive
// failures; Open rejects calls; HalfOpen admits a bounded number of
// probes.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker builds a standalone breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &Breaker{
		name: name,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenMaxCalls,
			Timeout:     cfg.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			// Domain errors (not-found, lock-lost, quota) pass through
			// without counting; transient taxonomy errors and unknown
			// faults trip the breaker.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				if e, ok := sberr.AsError(err); ok {
					return !e.Transient
				}
				return false
			},
		}),
	}
}

// Execute runs fn through the breaker. A rejected call fails with
// CircuitBreakerOpen carrying the consecutive failure count.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return sberr.NewCircuitBreakerOpen(b.name, b.cb.Counts().ConsecutiveFailures)
	}
	return err
}

// State reports the breaker's current state name (closed, open,
// half-open).
func (b *Breaker) State() string { return b.cb.State().String() }

// Registry is the name-keyed breaker set shared across the broker.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewRegistry builds a registry applying cfg to breakers it creates.
func NewRegistry(cfg BreakerConfig) *Registry {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &Registry{breakers: map[string]*Breaker{}, cfg: cfg}
}

// Get returns the named breaker, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Reset discards the named breaker so the next Get starts closed. Tests
// use it to clear accumulated failures.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}
