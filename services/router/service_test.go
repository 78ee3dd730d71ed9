package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/inference-gateway/models"
	"github.com/upb/inference-gateway/services/breaker"
	"github.com/upb/inference-gateway/services/cache"
	"github.com/upb/inference-gateway/services/executor"
	"github.com/upb/inference-gateway/services/keys"
	"github.com/upb/inference-gateway/services/providers"
	"github.com/upb/inference-gateway/services/ratelimit"
	"github.com/upb/inference-gateway/services/registry"
	"github.com/upb/inference-gateway/services/selector"
	"github.com/upb/inference-gateway/services/usage"
)

type nullStore struct{}

func (nullStore) Load(ctx context.Context) (map[string]usage.Record, error) { return nil, nil }
func (nullStore) Save(ctx context.Context, identity string, rec usage.Record) error {
	return nil
}
func (nullStore) Ping(ctx context.Context) error { return nil }
func (nullStore) Close() error                   { return nil }

// stubAdapter answers for one provider with a fixed outcome.
type stubAdapter struct {
	name    string
	content string
	err     error
	delay   time.Duration

	mu      sync.Mutex
	invokes int
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Invoke(ctx context.Context, model, prompt, credential string, timeout time.Duration) (string, error) {
	a.mu.Lock()
	a.invokes++
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.content, a.err
}

func (a *stubAdapter) invokeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.invokes
}

type routerFixture struct {
	router  *Service
	local   *stubAdapter
	openai  *stubAdapter
	private *stubAdapter
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	tables := registry.Tables{
		Models: []models.BackendModel{
			{ID: "local:llama", Provider: "local", Model: "llama", Affinity: "fast", Priority: 10},
			{ID: "openai:gpt", Provider: "openai", Model: "gpt", Affinity: "reasoning", RequestsPerMinute: 30, CostPerCall: 0.02, Priority: 20},
			{ID: "private:pool", Provider: "private", Model: "pool", Affinity: "reasoning", RequestsPerMinute: 10, Priority: 40},
		},
		Preferences: map[string][]string{
			registry.DefaultCategory: {"local:llama", "openai:gpt"},
			"reasoning":              {"openai:gpt", "local:llama"},
		},
	}
	reg, err := registry.New(tables)
	require.NoError(t, err)

	logger := zap.NewNop()
	usageSvc := usage.NewService(nullStore{}, logger)
	limiter := ratelimit.NewLimiter(usageSvc, reg, logger)
	breakers := breaker.NewRegistry(logger)
	respCache, err := cache.New(16)
	require.NoError(t, err)
	rotator := keys.NewRotator(map[string][]string{
		"openai":  {"sk-a"},
		"private": {"pk-a"},
	})

	f := &routerFixture{
		local:   &stubAdapter{name: "local", content: "local answer"},
		openai:  &stubAdapter{name: "openai", content: "openai answer"},
		private: &stubAdapter{name: "private", content: "private answer"},
	}

	adapters := providers.NewRegistry()
	require.NoError(t, adapters.Register(f.local))
	require.NoError(t, adapters.Register(f.openai))
	require.NoError(t, adapters.Register(f.private))

	sel := selector.New(reg, limiter, rotator, logger)
	engine := executor.New(reg, breakers, respCache, limiter, usageSvc, rotator, adapters, time.Second, logger)
	f.router = New(sel, engine, logger)

	return f
}

func TestRoute_SuccessWins(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), "question", "default", Options{})

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Content)
	assert.NotEmpty(t, res.Identity)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.ErrorType)

	// Both public candidates were raced.
	assert.Equal(t, 1, f.local.invokeCount())
	assert.Equal(t, 1, f.openai.invokeCount())
	// No escalation on success.
	assert.Zero(t, f.private.invokeCount())
}

func TestRoute_FirstSettledSuccessWins(t *testing.T) {
	f := newRouterFixture(t)

	// For "reasoning" the preference order is openai:gpt first, but it
	// answers slowly; the winner is decided by settlement order, not by
	// position in the candidate list.
	f.openai.delay = 200 * time.Millisecond

	res := f.router.Route(context.Background(), "question", "reasoning", Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "local:llama", res.Identity)
	assert.Equal(t, "local answer", res.Content)

	// The slow candidate was still raced and awaited.
	assert.Equal(t, 1, f.openai.invokeCount())
	assert.Equal(t, 1, f.local.invokeCount())
}

func TestRoute_PartialFailureStillSucceeds(t *testing.T) {
	f := newRouterFixture(t)
	f.openai.err = errors.New("upstream 500")
	f.openai.content = ""

	res := f.router.Route(context.Background(), "question", "reasoning", Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "local:llama", res.Identity)
	assert.Equal(t, "local answer", res.Content)
}

func TestRoute_PublicFailureEscalatesToPrivatePool(t *testing.T) {
	f := newRouterFixture(t)
	f.local.err = errors.New("runtime down")
	f.openai.err = errors.New("upstream 500")

	res := f.router.Route(context.Background(), "question", "reasoning", Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "private:pool", res.Identity)
	assert.Equal(t, "private answer", res.Content)
	assert.Equal(t, 1, f.private.invokeCount())
}

func TestRoute_EscalationFailureAggregates(t *testing.T) {
	f := newRouterFixture(t)
	f.local.err = errors.New("runtime down")
	f.openai.err = errors.New("upstream 500")
	f.private.err = errors.New("pool exhausted")

	res := f.router.Route(context.Background(), "question", "reasoning", Options{})

	assert.False(t, res.Success)
	assert.Equal(t, "all_failed", res.ErrorType)
	assert.Contains(t, res.Error, "openai:gpt")
	assert.Contains(t, res.Error, "local:llama")
	assert.Contains(t, res.Error, "private:pool")

	// Exactly one private-pool attempt.
	assert.Equal(t, 1, f.private.invokeCount())
}

func TestRoute_NoEscalateSkipsPrivatePool(t *testing.T) {
	f := newRouterFixture(t)
	f.local.err = errors.New("runtime down")
	f.openai.err = errors.New("upstream 500")

	res := f.router.Route(context.Background(), "question", "reasoning", Options{NoEscalate: true})

	assert.False(t, res.Success)
	assert.Equal(t, "all_failed", res.ErrorType)
	assert.Zero(t, f.private.invokeCount())
}

func TestRoute_ForcePrivateDoesNotEscalateTwice(t *testing.T) {
	f := newRouterFixture(t)
	f.private.err = errors.New("pool exhausted")

	res := f.router.Route(context.Background(), "question", "reasoning", Options{ForcePrivate: true})

	assert.False(t, res.Success)
	assert.Equal(t, "all_failed", res.ErrorType)
	assert.Equal(t, 1, f.private.invokeCount())
	assert.Zero(t, f.local.invokeCount())
	assert.Zero(t, f.openai.invokeCount())
}

func TestRoute_ForceLocal(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), "question", "reasoning", Options{ForceLocal: true})

	assert.True(t, res.Success)
	assert.Equal(t, "local:llama", res.Identity)
	assert.Zero(t, f.openai.invokeCount())
}

func TestRoute_ForceLocalFailureStillEscalates(t *testing.T) {
	f := newRouterFixture(t)
	f.local.err = errors.New("runtime down")

	res := f.router.Route(context.Background(), "question", "reasoning", Options{ForceLocal: true})

	// Escalation lifts the local restriction.
	assert.True(t, res.Success)
	assert.Equal(t, "private:pool", res.Identity)
}

func TestRoute_NoCandidates(t *testing.T) {
	f := newRouterFixture(t)

	// ForcePrivate selects from the pool, ForceLocal then excludes every
	// pool identity, leaving nothing.
	res := f.router.Route(context.Background(), "question", "reasoning", Options{ForceLocal: true, ForcePrivate: true})

	assert.False(t, res.Success)
	assert.Equal(t, "no_candidates", res.ErrorType)
	assert.NotEmpty(t, res.Error)
}

func TestRoute_PinnedIdentity(t *testing.T) {
	f := newRouterFixture(t)

	res := f.router.Route(context.Background(), "question", "reasoning", Options{PinnedIdentity: "openai:gpt"})

	assert.True(t, res.Success)
	assert.Equal(t, "openai:gpt", res.Identity)
	assert.Zero(t, f.local.invokeCount())

	t.Run("unknown pinned identity", func(t *testing.T) {
		res := f.router.Route(context.Background(), "question", "reasoning", Options{PinnedIdentity: "ghost:model"})
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.Error)
	})
}

func TestRoute_RepeatPromptServedFromCache(t *testing.T) {
	f := newRouterFixture(t)

	ctx := context.Background()
	first := f.router.Route(ctx, "same question", "reasoning", Options{})
	require.True(t, first.Success)

	before := f.openai.invokeCount() + f.local.invokeCount()

	second := f.router.Route(ctx, "same question", "reasoning", Options{})
	assert.True(t, second.Success)

	// At least the winning identity answers from cache; the race still
	// settles but the cached candidate dispatches nothing new.
	after := f.openai.invokeCount() + f.local.invokeCount()
	assert.Less(t, after-before, 2)
}
