package breaker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the circuit state of one provider.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	// DefaultThreshold is the consecutive-failure count that opens a circuit.
	DefaultThreshold = 5

	// DefaultCooldown is how long an open circuit rejects calls before
	// allowing a single trial.
	DefaultCooldown = 60 * time.Second
)

// providerState tracks one provider's breaker. There is no jitter or
// exponential backoff: provider-level outages are assumed bursty but not
// adversarial.
type providerState struct {
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// Registry holds one circuit breaker per provider. States are created
// lazily on first use and live for the process lifetime.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*providerState
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRegistry creates a breaker registry with the default threshold and
// cooldown.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[string]*providerState),
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether a call to the provider may proceed.
//
// Closed circuits always allow. An open circuit allows only once the
// cooldown has elapsed, in which case it transitions to half-open and
// resets the failure count before letting the call through: the caller
// that triggers the transition is the trial call.
func (r *Registry) Allow(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.state(provider)
	switch ps.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if r.now().Sub(ps.lastFailureTime) > r.cooldown {
			ps.state = StateHalfOpen
			ps.failureCount = 0
			r.logger.Info("circuit half-open, allowing trial call",
				zap.String("provider", provider))
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the circuit and resets the failure count.
func (r *Registry) RecordSuccess(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.state(provider)
	if ps.state == StateHalfOpen {
		r.logger.Info("circuit closed after successful trial",
			zap.String("provider", provider))
	}
	ps.state = StateClosed
	ps.failureCount = 0
}

// RecordFailure increments the provider's failure count and stamps the
// failure time. Once the count crosses the threshold the circuit
// (re-)opens.
func (r *Registry) RecordFailure(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ps := r.state(provider)
	ps.failureCount++
	ps.lastFailureTime = r.now()

	if ps.failureCount >= r.threshold && ps.state != StateOpen {
		ps.state = StateOpen
		r.logger.Warn("circuit opened",
			zap.String("provider", provider),
			zap.Int("consecutive_failures", ps.failureCount),
			zap.Duration("cooldown", r.cooldown))
	}
}

// Snapshot is a read-only view of one provider's breaker.
type Snapshot struct {
	Provider        string    `json:"provider"`
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
}

// Snapshots returns the state of every tracked provider, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.providers))
	for name, ps := range r.providers {
		out = append(out, Snapshot{
			Provider:        name,
			State:           ps.state,
			FailureCount:    ps.failureCount,
			LastFailureTime: ps.lastFailureTime,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// state returns the provider's breaker, creating it closed. Caller holds mu.
func (r *Registry) state(provider string) *providerState {
	ps, ok := r.providers[provider]
	if !ok {
		ps = &providerState{state: StateClosed}
		r.providers[provider] = ps
	}
	return ps
}
