package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/inference-gateway/services"
	"github.com/upb/inference-gateway/services/executor"
	"github.com/upb/inference-gateway/services/selector"
)

// Options are the caller-facing routing constraints.
type Options struct {
	// ForceLocal restricts the initial race to the local runtime. It is a
	// preference, not a guarantee: when every local candidate fails, the
	// private-pool escalation still runs unless NoEscalate is set. Callers
	// with hard data-locality requirements must set NoEscalate as well.
	ForceLocal bool

	// ForcePrivate routes straight to the private pool.
	ForcePrivate bool

	// MaxCost excludes identities above this per-call cost. Nil means
	// no ceiling.
	MaxCost *float64

	// PinnedIdentity skips selection and executes one identity directly.
	// Diagnostics and testing only, not normal operation.
	PinnedIdentity string

	// NoEscalate opts out of the private-pool escalation after a failed
	// public race.
	NoEscalate bool
}

// Result is the structured shape every caller receives. The router never
// returns an error across its public boundary; all failure modes resolve
// here.
type Result struct {
	Success  bool   `json:"success"`
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	Identity string `json:"identity,omitempty"`

	// ErrorType carries the failure taxonomy for transport mapping.
	// Empty on success.
	ErrorType string `json:"error_type,omitempty"`
}

// Service is the gateway's top-level entry point: it turns a task
// category into a race across all eligible candidates and escalates to
// the private pool when every public candidate fails.
type Service struct {
	selector *selector.Selector
	engine   *executor.Engine
	logger   *zap.Logger
}

// New creates the routing service.
func New(sel *selector.Selector, engine *executor.Engine, logger *zap.Logger) *Service {
	return &Service{
		selector: sel,
		engine:   engine,
		logger:   logger,
	}
}

// Route resolves one prompt. Candidates race concurrently; the first
// success in settlement order wins, but every launched call is awaited so
// cache, ledger and circuit state stay consistent regardless of which one
// won. A per-candidate failure is never retried within the same call
// beyond the single private-pool escalation; retries across calls belong
// to the caller.
func (s *Service) Route(ctx context.Context, prompt, category string, opts Options) Result {
	routeID := uuid.NewString()
	log := s.logger.With(
		zap.String("route_id", routeID),
		zap.String("category", category))

	if opts.PinnedIdentity != "" {
		log.Info("routing to pinned identity", zap.String("identity", opts.PinnedIdentity))
		return toResult(s.engine.Execute(ctx, opts.PinnedIdentity, prompt))
	}

	constraints := selector.Constraints{
		ForceLocal:   opts.ForceLocal,
		ForcePrivate: opts.ForcePrivate,
		MaxCost:      opts.MaxCost,
	}

	candidates := s.selector.SelectCandidates(category, constraints)
	if len(candidates) == 0 {
		log.Warn("no backends available")
		return Result{
			Error:     services.ErrNoCandidates.Message,
			ErrorType: string(services.ErrorTypeNoCandidates),
		}
	}

	log.Info("racing candidates", zap.Strings("candidates", candidates))

	winner, failures := s.race(ctx, candidates, prompt)
	if winner != nil {
		log.Info("race settled",
			zap.String("identity", winner.Identity),
			zap.Bool("cached", winner.Cached))
		return toResult(*winner)
	}

	// Escalate to the private pool unless the caller opted out or the
	// race was already private. One sequential attempt: the pool is a
	// single trusted tier, not a race target.
	if !opts.ForcePrivate && !opts.NoEscalate {
		if res, attempted := s.escalate(ctx, prompt, category, constraints, log); attempted {
			if res.Success {
				return toResult(res)
			}
			failures = append(failures, describeFailure(res))
		}
	}

	log.Warn("all candidates failed", zap.Strings("failures", failures))
	return Result{
		Error:     fmt.Sprintf("%s: %s", services.ErrAllFailed.Message, strings.Join(failures, "; ")),
		ErrorType: string(services.ErrorTypeAllFailed),
	}
}

// race launches the engine concurrently against every candidate and
// waits for all of them to settle. Returns the first success in
// settlement order, or the per-candidate failure descriptions.
func (s *Service) race(ctx context.Context, candidates []string, prompt string) (*executor.Result, []string) {
	results := make(chan executor.Result, len(candidates))
	for _, identity := range candidates {
		go func(identity string) {
			results <- s.engine.Execute(ctx, identity, prompt)
		}(identity)
	}

	var winner *executor.Result
	var failures []string
	for range candidates {
		res := <-results
		if res.Success && winner == nil {
			winner = &res
			continue
		}
		if !res.Success {
			failures = append(failures, describeFailure(res))
		}
	}

	return winner, failures
}

// escalate runs the single private-pool attempt. attempted is false when
// the pool itself has no usable identity.
func (s *Service) escalate(ctx context.Context, prompt, category string, c selector.Constraints, log *zap.Logger) (executor.Result, bool) {
	c.ForcePrivate = true
	c.ForceLocal = false

	pool := s.selector.SelectCandidates(category, c)
	if len(pool) == 0 {
		log.Warn("private pool has no usable identity")
		return executor.Result{}, false
	}

	identity := pool[0]
	log.Info("escalating to private pool", zap.String("identity", identity))
	return s.engine.Execute(ctx, identity, prompt), true
}

func toResult(res executor.Result) Result {
	out := Result{
		Success:  res.Success,
		Content:  res.Content,
		Identity: res.Identity,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.ErrorType = string(services.GetErrorType(res.Err))
	}
	return out
}

func describeFailure(res executor.Result) string {
	if res.Err == nil {
		return res.Identity + ": failed"
	}
	return res.Identity + ": " + res.Err.Error()
}
