// Package circuitbreaker isolates failing platform profiles so one broken
// account does not burn the request budget of the whole queue.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ads-sync/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means a single probe request is allowed through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrProbeInFlight is returned in half-open state while the probe is running
var ErrProbeInFlight = errors.New("circuit breaker probe in flight")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxConsecutiveFailures opens the circuit
	MaxConsecutiveFailures int
	// Cooldown is how long the circuit stays open before a probe
	Cooldown time.Duration
	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                   name,
		MaxConsecutiveFailures: 5,
		Cooldown:               60 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	isFailure   func(error) bool
	now         func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	probing          bool
	totalCalls       int
	totalFailures    int
	lastStateChange  time.Time
	lastError        string
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	maxFailures := config.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		name:            config.Name,
		maxFailures:     maxFailures,
		cooldown:        config.Cooldown,
		isFailure:       config.IsFailure,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	probe, err := cb.beforeRequest(ctx)
	if err != nil {
		return err
	}

	err = fn()
	cb.afterRequest(ctx, probe, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest(ctx context.Context) (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		logging.FromContext(ctx).WithField("circuitBreaker", cb.name).Info("Circuit breaker half-open, probing")
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			return false, ErrProbeInFlight
		}
		cb.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	if probe {
		cb.probing = false
	}

	failed := err != nil && (cb.isFailure == nil || cb.isFailure(err))
	logger := logging.FromContext(ctx).WithField("circuitBreaker", cb.name)

	if !failed {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
			logger.Info("Circuit breaker closed after successful probe")
		}
		return
	}

	cb.totalFailures++
	cb.consecutiveFails++
	cb.lastError = err.Error()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
		logger.WithError(err).Warn("Circuit breaker reopened after failed probe")
	case StateClosed:
		if cb.consecutiveFails >= cb.maxFailures {
			cb.setState(StateOpen)
			logger.WithError(err).WithField("consecutiveFails", cb.consecutiveFails).Warn("Circuit breaker opened")
		}
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	TotalCalls       int       `json:"totalCalls"`
	TotalFailures    int       `json:"totalFailures"`
	LastError        string    `json:"lastError,omitempty"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		TotalCalls:       cb.totalCalls,
		TotalFailures:    cb.totalFailures,
		LastError:        cb.lastError,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset manually closes the circuit, e.g. after an account is re-authorized
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.consecutiveFails = 0
	cb.probing = false
}

// Manager holds one breaker per platform profile
type Manager struct {
	template Config
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
}

// NewManager creates a manager whose breakers share template's settings
func NewManager(template Config) *Manager {
	return &Manager{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for a profile, creating it on first use
func (m *Manager) For(profile string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[profile]; ok {
		return cb
	}
	cfg := m.template
	cfg.Name = profile
	cb := NewCircuitBreaker(&cfg)
	m.breakers[profile] = cb
	return cb
}

// AllStats returns statistics for every breaker
func (m *Manager) AllStats() map[string]*Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]*Stats, len(m.breakers))
	for name, cb := range m.breakers {
		result[name] = cb.GetStats()
	}
	return result
}
