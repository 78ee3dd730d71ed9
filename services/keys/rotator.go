package keys

import (
	"sync"
)

// Rotator round-robins across the credentials configured per provider.
// All models under one provider share one rotation cursor.
type Rotator struct {
	mu      sync.Mutex
	creds   map[string][]string
	cursors map[string]int
}

// NewRotator creates a rotator over the given provider credential lists.
// Providers with no entry (or an empty list) have no usable credential.
func NewRotator(creds map[string][]string) *Rotator {
	copied := make(map[string][]string, len(creds))
	for provider, list := range creds {
		copied[provider] = append([]string(nil), list...)
	}
	return &Rotator{
		creds:   copied,
		cursors: make(map[string]int),
	}
}

// NextKey returns the provider's current credential and advances the
// cursor. ok is false when the provider has no credentials configured.
func (r *Rotator) NextKey(provider string) (credential string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.creds[provider]
	if len(list) == 0 {
		return "", false
	}

	i := r.cursors[provider] % len(list)
	r.cursors[provider] = (i + 1) % len(list)
	return list[i], true
}

// HasCredentials reports whether the provider has at least one credential.
// The candidate selector treats providers without one as unusable, except
// the local runtime which needs none.
func (r *Rotator) HasCredentials(provider string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds[provider]) > 0
}
