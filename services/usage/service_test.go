package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	records map[string]Record
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]Record)}
}

func (m *memStore) Load(ctx context.Context) (map[string]Record, error) {
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) Save(ctx context.Context, identity string, rec Record) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[identity] = rec
	return nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func TestService_RecordCallAndCount(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")
	svc.RecordCall(ctx, "openai:gpt-4o")
	svc.RecordCall(ctx, "mistral:mistral-small")

	assert.Equal(t, 2, svc.CountSince("openai:gpt-4o", time.Minute))
	assert.Equal(t, 1, svc.CountSince("mistral:mistral-small", time.Minute))
	assert.Equal(t, 0, svc.CountSince("local:llama3.1-8b", time.Minute))

	// Every mutation reached the store.
	assert.Equal(t, 3, store.saves)
	assert.Len(t, store.records["openai:gpt-4o"].Timestamps, 2)
}

func TestService_CountSinceRespectsWindow(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")

	current = current.Add(90 * time.Second)
	svc.RecordCall(ctx, "openai:gpt-4o")

	// Only the second call is inside the trailing minute.
	assert.Equal(t, 1, svc.CountSince("openai:gpt-4o", time.Minute))
	assert.Equal(t, 2, svc.CountSince("openai:gpt-4o", 5*time.Minute))
}

func TestService_RetentionPrunesOldTimestamps(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")

	// A call past the retention horizon drops the earlier timestamp.
	current = current.Add(retention + time.Second)
	svc.RecordCall(ctx, "openai:gpt-4o")

	assert.Len(t, store.records["openai:gpt-4o"].Timestamps, 1)
	assert.Equal(t, 1, svc.CountSince("openai:gpt-4o", retention))
}

func TestService_AddCost(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	ctx := context.Background()
	svc.AddCost(ctx, "openai:gpt-4o", 0.02)
	svc.AddCost(ctx, "openai:gpt-4o", 0.02)
	svc.AddCost(ctx, "openai:gpt-4o", 0)
	svc.AddCost(ctx, "openai:gpt-4o", -1)

	assert.InDelta(t, 0.04, svc.TotalCost("openai:gpt-4o"), 1e-9)
	assert.Zero(t, svc.TotalCost("local:llama3.1-8b"))

	// Zero and negative costs never hit the store.
	assert.Equal(t, 2, store.saves)
}

func TestService_LoadHydratesAndPrunes(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	store.records["openai:gpt-4o"] = Record{
		Timestamps: []time.Time{
			now.Add(-10 * time.Minute), // past retention, dropped
			now.Add(-30 * time.Second),
		},
		TotalCost: 1.5,
	}

	svc := NewService(store, zap.NewNop())
	require.NoError(t, svc.Load(context.Background()))

	assert.Equal(t, 1, svc.CountSince("openai:gpt-4o", time.Minute))
	assert.InDelta(t, 1.5, svc.TotalCost("openai:gpt-4o"), 1e-9)
}

func TestService_StoreFailureDoesNotFailCall(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	svc := NewService(store, zap.NewNop())

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")

	// The in-memory window stays authoritative.
	assert.Equal(t, 1, svc.CountSince("openai:gpt-4o", time.Minute))
}

func TestService_FlushedRecordIsIsolatedFromLiveState(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")
	flushed := store.records["openai:gpt-4o"]
	require.Len(t, flushed.Timestamps, 1)
	first := flushed.Timestamps[0]

	// Pruning rewrites the live timestamp array in place; the previously
	// flushed record must keep its own copy.
	current = current.Add(retention + time.Second)
	svc.RecordCall(ctx, "openai:gpt-4o")

	assert.Equal(t, first, flushed.Timestamps[0])
}

// iteratingStore walks the flushed timestamps, like the sqlite store does
// when encoding them, so the race detector sees any sharing with the live
// record.
type iteratingStore struct{}

func (iteratingStore) Load(ctx context.Context) (map[string]Record, error) { return nil, nil }
func (iteratingStore) Ping(ctx context.Context) error                      { return nil }
func (iteratingStore) Close() error                                        { return nil }

func (iteratingStore) Save(ctx context.Context, identity string, rec Record) error {
	for _, ts := range rec.Timestamps {
		_ = ts.UnixNano()
	}
	return nil
}

func TestService_ConcurrentRecordCallSameIdentity(t *testing.T) {
	svc := NewService(iteratingStore{}, zap.NewNop())

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				svc.RecordCall(ctx, "openai:gpt-4o")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1600, svc.CountSince("openai:gpt-4o", time.Minute))
}

func TestService_Snapshot(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())

	ctx := context.Background()
	svc.RecordCall(ctx, "openai:gpt-4o")
	svc.RecordCall(ctx, "local:llama3.1-8b")
	svc.AddCost(ctx, "openai:gpt-4o", 0.02)

	snap := svc.Snapshot()
	require.Len(t, snap, 2)

	// Sorted by identity.
	assert.Equal(t, "local:llama3.1-8b", snap[0].Identity)
	assert.Equal(t, "openai:gpt-4o", snap[1].Identity)

	assert.Equal(t, 1, snap[1].CallsLastMinute)
	assert.Equal(t, 1, snap[1].CallsLastFiveMin)
	assert.InDelta(t, 0.02, snap[1].TotalCost, 1e-9)
}
