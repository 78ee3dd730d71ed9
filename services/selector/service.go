package selector

import (
	"go.uber.org/zap"

	"github.com/upb/inference-gateway/models"
	"github.com/upb/inference-gateway/services/keys"
	"github.com/upb/inference-gateway/services/ratelimit"
	"github.com/upb/inference-gateway/services/registry"
)

// Constraints narrow the candidate list for one routing decision.
type Constraints struct {
	// ForceLocal keeps only identities of the local runtime.
	ForceLocal bool

	// ForcePrivate ignores the category preference list entirely and
	// selects from the private pool only.
	ForcePrivate bool

	// MaxCost excludes identities whose per-call cost exceeds it.
	// Nil means no cost ceiling.
	MaxCost *float64
}

// Selector produces the ordered list of eligible backend-model identities
// for a task category. It reads rate-limit and credential state but has no
// side effects.
type Selector struct {
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	rotator  *keys.Rotator
	logger   *zap.Logger
}

// New creates a candidate selector.
func New(reg *registry.Registry, limiter *ratelimit.Limiter, rotator *keys.Rotator, logger *zap.Logger) *Selector {
	return &Selector{
		registry: reg,
		limiter:  limiter,
		rotator:  rotator,
		logger:   logger,
	}
}

// SelectCandidates walks the category's preference list in order and keeps
// the identities that are currently usable. List position is the
// tie-break: preference order encodes operator-assigned priority, with
// cheap and local tiers first. An empty result is the caller's terminal
// condition to handle.
func (s *Selector) SelectCandidates(category string, c Constraints) []string {
	var list []string
	if c.ForcePrivate {
		list = s.registry.PrivatePool(category)
	} else {
		list = s.registry.Preference(category)
	}

	candidates := make([]string, 0, len(list))
	for _, id := range list {
		m, ok := s.registry.Lookup(id)
		if !ok {
			s.logger.Warn("preference list names unknown identity", zap.String("identity", id))
			continue
		}
		if reason := s.exclude(m, c); reason != "" {
			s.logger.Debug("candidate excluded",
				zap.String("identity", id),
				zap.String("reason", reason),
				zap.String("category", category))
			continue
		}
		candidates = append(candidates, id)
	}

	return candidates
}

// exclude returns a non-empty reason when the identity is not usable
// under the constraints.
func (s *Selector) exclude(m models.BackendModel, c Constraints) string {
	if c.ForceLocal && m.Provider != models.ProviderLocal {
		return "not local"
	}
	if c.MaxCost != nil && m.CostPerCall > *c.MaxCost {
		return "over cost ceiling"
	}
	if s.limiter.IsLimited(m.ID) {
		return "rate limited"
	}
	// The local runtime needs no credential; every other provider does.
	if m.Provider != models.ProviderLocal && !s.rotator.HasCredentials(m.Provider) {
		return "no credential"
	}
	return ""
}
