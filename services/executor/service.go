package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inference-gateway/services"
	"github.com/upb/inference-gateway/services/breaker"
	"github.com/upb/inference-gateway/services/cache"
	"github.com/upb/inference-gateway/services/keys"
	"github.com/upb/inference-gateway/services/providers"
	"github.com/upb/inference-gateway/services/ratelimit"
	"github.com/upb/inference-gateway/services/registry"
	"github.com/upb/inference-gateway/services/usage"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of executing one identity end-to-end.
type Result struct {
	Success  bool
	Content  string
	Identity string
	Cached   bool
	Err      error
}

// Engine invokes one backend-model identity end-to-end: circuit gate,
// cache gate, rate-limit recording, adapter dispatch, then cache, circuit
// and ledger updates.
type Engine struct {
	registry *registry.Registry
	breakers *breaker.Registry
	cache    *cache.ResponseCache
	limiter  *ratelimit.Limiter
	usage    *usage.Service
	rotator  *keys.Rotator
	adapters *providers.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates an execution engine. timeout bounds each adapter dispatch;
// zero means DefaultTimeout.
func New(
	reg *registry.Registry,
	breakers *breaker.Registry,
	respCache *cache.ResponseCache,
	limiter *ratelimit.Limiter,
	usageSvc *usage.Service,
	rotator *keys.Rotator,
	adapters *providers.Registry,
	timeout time.Duration,
	logger *zap.Logger,
) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		registry: reg,
		breakers: breakers,
		cache:    respCache,
		limiter:  limiter,
		usage:    usageSvc,
		rotator:  rotator,
		adapters: adapters,
		timeout:  timeout,
		logger:   logger,
	}
}

// Execute runs the gates in order, each one hard.
func (e *Engine) Execute(ctx context.Context, identity, prompt string) Result {
	m, ok := e.registry.Lookup(identity)
	if !ok {
		return Result{
			Identity: identity,
			Err:      services.ErrUnknownIdentity.WithDetail("identity", identity),
		}
	}

	// Gate 1: circuit. No network call is attempted against an open
	// provider until its cooldown elapses.
	if !e.breakers.Allow(m.Provider) {
		return Result{
			Identity: identity,
			Err:      services.ErrCircuitOpen.WithDetail("provider", m.Provider),
		}
	}

	// Gate 2: cache. A hit bypasses every subsequent step and does not
	// count against the rate-limit window.
	if content, hit := e.cache.Get(identity, prompt); hit {
		e.logger.Debug("cache hit", zap.String("identity", identity))
		return Result{
			Success:  true,
			Content:  content,
			Identity: identity,
			Cached:   true,
		}
	}

	// Record the call before dispatch. The gateway is conservative about
	// quota: failed calls consume window slots too.
	e.limiter.Record(ctx, identity)

	adapter, err := e.adapters.Get(m.Provider)
	if err != nil {
		e.breakers.RecordFailure(m.Provider)
		return Result{
			Identity: identity,
			Err:      services.ErrUnknownAdapter.WithDetail("provider", m.Provider),
		}
	}

	// A pinned identity can reach a credential-less provider without
	// passing selection; the adapter call then fails and is recorded
	// like any other failure.
	credential, _ := e.rotator.NextKey(m.Provider)

	// Dispatch on a context detached from the caller's cancellation so a
	// caller-side timeout never cuts off cache, ledger or circuit
	// updates; the adapter timeout is the only bound.
	dispatchCtx := context.WithoutCancel(ctx)

	start := time.Now()
	content, err := adapter.Invoke(dispatchCtx, m.Model, prompt, credential, e.timeout)
	if err != nil {
		e.breakers.RecordFailure(m.Provider)
		e.logger.Warn("backend call failed",
			zap.String("identity", identity),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err))
		return Result{
			Identity: identity,
			Err:      services.WrapAdapterFailure("backend call failed", err),
		}
	}

	if m.CostPerCall > 0 {
		e.usage.AddCost(dispatchCtx, identity, m.CostPerCall)
	}
	e.cache.Set(identity, prompt, content)
	e.breakers.RecordSuccess(m.Provider)

	e.logger.Debug("backend call succeeded",
		zap.String("identity", identity),
		zap.Duration("latency", time.Since(start)))

	return Result{
		Success:  true,
		Content:  content,
		Identity: identity,
	}
}
