package models

import (
	"fmt"
	"strings"
)

// Provider names known to the gateway. Each provider owns its own
// credentials and exactly one circuit breaker state.
const (
	// ProviderLocal is the on-box open-weight runtime. It needs no
	// credential and is always considered usable.
	ProviderLocal = "local"

	// ProviderOpenAI is the OpenAI-compatible hosted tier.
	ProviderOpenAI = "openai"

	// ProviderMistral is the Mistral hosted tier (OpenAI-compatible wire
	// format, separate credentials and quota).
	ProviderMistral = "mistral"

	// ProviderPrivate is the restricted private-pool tier, used only as
	// last-resort escalation when every public candidate has failed.
	ProviderPrivate = "private"
)

// Task affinity tags carried by backend models. Open set; these are the
// tags the built-in tables use.
const (
	AffinityFast      = "fast"
	AffinityReasoning = "reasoning"
	AffinityCreative  = "creative"
)

// BackendModel identifies one callable (provider, model) configuration.
// Instances are immutable for the process lifetime and live in the
// identity registry built at startup.
type BackendModel struct {
	// ID is the stable "provider:model" key for this configuration.
	ID string `toml:"id" json:"id"`

	// Provider is the owning upstream.
	Provider string `toml:"provider" json:"provider"`

	// Model is the underlying model name passed to the adapter.
	Model string `toml:"model" json:"model"`

	// Affinity is the task-affinity tag ("fast", "reasoning", ...).
	Affinity string `toml:"affinity" json:"affinity"`

	// RequestsPerMinute is the per-minute rate limit. Zero means
	// unbounded: the identity is never excluded for rate, though its
	// calls are still recorded for usage reporting.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`

	// CostPerCall is the estimated cost of one call, in the operator's
	// unit. Zero for free tiers and the local runtime.
	CostPerCall float64 `toml:"cost_per_call" json:"cost_per_call"`

	// Priority breaks ties among otherwise-equal candidates; lower is
	// preferred. Preference-list order remains the primary ordering.
	Priority int `toml:"priority" json:"priority"`
}

// Validate checks that the identity is internally consistent.
func (m BackendModel) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("backend model id cannot be empty")
	}
	if m.Provider == "" || m.Model == "" {
		return fmt.Errorf("backend model %s: provider and model are required", m.ID)
	}
	if want := IdentityID(m.Provider, m.Model); m.ID != want {
		return fmt.Errorf("backend model id %q does not match provider:model (%s)", m.ID, want)
	}
	if m.RequestsPerMinute < 0 {
		return fmt.Errorf("backend model %s: requests_per_minute cannot be negative", m.ID)
	}
	if m.CostPerCall < 0 {
		return fmt.Errorf("backend model %s: cost_per_call cannot be negative", m.ID)
	}
	return nil
}

// Unbounded reports whether the identity has no per-minute limit.
func (m BackendModel) Unbounded() bool {
	return m.RequestsPerMinute == 0
}

// IdentityID builds the stable "provider:model" key.
func IdentityID(provider, model string) string {
	return provider + ":" + model
}

// SplitIdentityID splits a "provider:model" key back into its parts.
func SplitIdentityID(id string) (provider, model string, ok bool) {
	provider, model, ok = strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", false
	}
	return provider, model, true
}
