package registry

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/upb/inference-gateway/models"
)

// DefaultCategory is the preference list used when a caller names a task
// category no table entry covers. Task categories are an open set.
const DefaultCategory = "default"

// Tables is the static configuration surface: the identity metadata table
// and the per-category ordered preference lists. Loaded once at startup;
// there is no runtime mutation API.
type Tables struct {
	Models      []models.BackendModel `toml:"model"`
	Preferences map[string][]string   `toml:"preferences"`
}

// LoadTables reads routing tables from a TOML file.
func LoadTables(path string) (Tables, error) {
	var t Tables
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return Tables{}, fmt.Errorf("failed to load routing tables from %s: %w", path, err)
	}
	return t, nil
}

// Registry resolves backend-model identities and category preference
// lists. Immutable after construction.
type Registry struct {
	byID  map[string]models.BackendModel
	prefs map[string][]string
}

// New builds a registry from tables, validating that every identity is
// well-formed and every preference entry refers to a known identity.
func New(tables Tables) (*Registry, error) {
	byID := make(map[string]models.BackendModel, len(tables.Models))
	for _, m := range tables.Models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byID[m.ID]; exists {
			return nil, fmt.Errorf("duplicate backend model %s", m.ID)
		}
		byID[m.ID] = m
	}

	if len(byID) == 0 {
		return nil, fmt.Errorf("routing tables define no backend models")
	}

	prefs := make(map[string][]string, len(tables.Preferences))
	for category, list := range tables.Preferences {
		if len(list) == 0 {
			return nil, fmt.Errorf("preference list for category %q is empty", category)
		}
		for _, id := range list {
			if _, ok := byID[id]; !ok {
				return nil, fmt.Errorf("preference list %q names unknown identity %s", category, id)
			}
		}
		prefs[category] = append([]string(nil), list...)
	}

	if _, ok := prefs[DefaultCategory]; !ok {
		return nil, fmt.Errorf("routing tables must define a %q preference list", DefaultCategory)
	}

	return &Registry{byID: byID, prefs: prefs}, nil
}

// Lookup resolves an identity key.
func (r *Registry) Lookup(identity string) (models.BackendModel, bool) {
	m, ok := r.byID[identity]
	return m, ok
}

// Preference returns the ordered identity list for a category, falling
// back to the default list for unknown categories. The returned slice is
// shared; callers must not mutate it.
func (r *Registry) Preference(category string) []string {
	if list, ok := r.prefs[category]; ok {
		return list
	}
	return r.prefs[DefaultCategory]
}

// PrivatePool returns the private-pool identities, ordered so that an
// affinity match for the category comes first, then by priority.
func (r *Registry) PrivatePool(category string) []string {
	var pool []models.BackendModel
	for _, m := range r.byID {
		if m.Provider == models.ProviderPrivate {
			pool = append(pool, m)
		}
	}

	sort.Slice(pool, func(i, j int) bool {
		mi, mj := pool[i], pool[j]
		if am, bm := mi.Affinity == category, mj.Affinity == category; am != bm {
			return am
		}
		if mi.Priority != mj.Priority {
			return mi.Priority < mj.Priority
		}
		return mi.ID < mj.ID
	})

	ids := make([]string, len(pool))
	for i, m := range pool {
		ids[i] = m.ID
	}
	return ids
}

// List returns every registered identity, sorted by key.
func (r *Registry) List() []models.BackendModel {
	out := make([]models.BackendModel, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultTables returns the compiled-in routing tables, used when no
// tables file is configured. Cheap and free tiers lead each list;
// expensive hosted models trail.
func DefaultTables() Tables {
	return Tables{
		Models: []models.BackendModel{
			{
				ID:       "local:llama3.1-8b",
				Provider: models.ProviderLocal,
				Model:    "llama3.1-8b",
				Affinity: models.AffinityFast,
				Priority: 10,
			},
			{
				ID:                "mistral:mistral-small",
				Provider:          models.ProviderMistral,
				Model:             "mistral-small",
				Affinity:          models.AffinityFast,
				RequestsPerMinute: 60,
				CostPerCall:       0.001,
				Priority:          20,
			},
			{
				ID:                "openai:gpt-4o-mini",
				Provider:          models.ProviderOpenAI,
				Model:             "gpt-4o-mini",
				Affinity:          models.AffinityFast,
				RequestsPerMinute: 60,
				CostPerCall:       0.002,
				Priority:          20,
			},
			{
				ID:                "mistral:mistral-large",
				Provider:          models.ProviderMistral,
				Model:             "mistral-large",
				Affinity:          models.AffinityCreative,
				RequestsPerMinute: 30,
				CostPerCall:       0.012,
				Priority:          30,
			},
			{
				ID:                "openai:gpt-4o",
				Provider:          models.ProviderOpenAI,
				Model:             "gpt-4o",
				Affinity:          models.AffinityReasoning,
				RequestsPerMinute: 30,
				CostPerCall:       0.02,
				Priority:          30,
			},
			{
				ID:                "private:pool-fast",
				Provider:          models.ProviderPrivate,
				Model:             "pool-fast",
				Affinity:          models.AffinityFast,
				RequestsPerMinute: 10,
				Priority:          40,
			},
			{
				ID:                "private:pool-reasoning",
				Provider:          models.ProviderPrivate,
				Model:             "pool-reasoning",
				Affinity:          models.AffinityReasoning,
				RequestsPerMinute: 10,
				Priority:          41,
			},
		},
		Preferences: map[string][]string{
			DefaultCategory: {
				"local:llama3.1-8b",
				"mistral:mistral-small",
				"openai:gpt-4o-mini",
			},
			models.AffinityFast: {
				"local:llama3.1-8b",
				"mistral:mistral-small",
				"openai:gpt-4o-mini",
			},
			models.AffinityReasoning: {
				"openai:gpt-4o",
				"mistral:mistral-large",
				"local:llama3.1-8b",
			},
			models.AffinityCreative: {
				"mistral:mistral-large",
				"openai:gpt-4o",
				"local:llama3.1-8b",
			},
		},
	}
}
