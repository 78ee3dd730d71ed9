package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(zap.NewNop())
}

func TestRegistry_AllowClosedByDefault(t *testing.T) {
	r := newTestRegistry(t)

	assert.True(t, r.Allow("openai"))
	assert.True(t, r.Allow("mistral"))
}

func TestRegistry_OpensAtThreshold(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < DefaultThreshold-1; i++ {
		r.RecordFailure("openai")
		assert.True(t, r.Allow("openai"), "circuit must stay closed below the threshold")
	}

	r.RecordFailure("openai")
	assert.False(t, r.Allow("openai"), "circuit must open at the threshold")

	// Other providers are unaffected.
	assert.True(t, r.Allow("mistral"))
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < DefaultThreshold-1; i++ {
		r.RecordFailure("openai")
	}
	r.RecordSuccess("openai")

	// The streak restarts, so threshold-1 more failures don't open it.
	for i := 0; i < DefaultThreshold-1; i++ {
		r.RecordFailure("openai")
	}
	assert.True(t, r.Allow("openai"))
}

func TestRegistry_CooldownAllowsTrial(t *testing.T) {
	r := newTestRegistry(t)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return current }

	for i := 0; i < DefaultThreshold; i++ {
		r.RecordFailure("openai")
	}
	assert.False(t, r.Allow("openai"))

	// Inside the cooldown the circuit keeps rejecting.
	current = current.Add(DefaultCooldown / 2)
	assert.False(t, r.Allow("openai"))

	// Past the cooldown the first caller is the trial.
	current = current.Add(DefaultCooldown)
	assert.True(t, r.Allow("openai"))

	snaps := r.Snapshots()
	assert.Len(t, snaps, 1)
	assert.Equal(t, StateHalfOpen, snaps[0].State)
	assert.Equal(t, 0, snaps[0].FailureCount)
}

func TestRegistry_HalfOpenTrialOutcomes(t *testing.T) {
	t.Run("successful trial closes the circuit", func(t *testing.T) {
		r := newTestRegistry(t)
		current := time.Now()
		r.now = func() time.Time { return current }

		for i := 0; i < DefaultThreshold; i++ {
			r.RecordFailure("openai")
		}
		current = current.Add(DefaultCooldown + time.Second)
		assert.True(t, r.Allow("openai"))

		r.RecordSuccess("openai")
		snaps := r.Snapshots()
		assert.Equal(t, StateClosed, snaps[0].State)
		assert.Equal(t, 0, snaps[0].FailureCount)
	})

	t.Run("failed trial needs a full streak to reopen", func(t *testing.T) {
		r := newTestRegistry(t)
		current := time.Now()
		r.now = func() time.Time { return current }

		for i := 0; i < DefaultThreshold; i++ {
			r.RecordFailure("openai")
		}
		current = current.Add(DefaultCooldown + time.Second)
		assert.True(t, r.Allow("openai"))

		// The transition reset the count, so a single failure leaves the
		// circuit half-open and calls keep flowing.
		r.RecordFailure("openai")
		assert.True(t, r.Allow("openai"))

		for i := 0; i < DefaultThreshold-1; i++ {
			r.RecordFailure("openai")
		}
		assert.False(t, r.Allow("openai"))
	})
}

func TestRegistry_Snapshots(t *testing.T) {
	r := newTestRegistry(t)

	r.Allow("openai")
	r.RecordFailure("mistral")
	r.Allow("local")

	snaps := r.Snapshots()
	assert.Len(t, snaps, 3)

	// Sorted by provider name.
	assert.Equal(t, "local", snaps[0].Provider)
	assert.Equal(t, "mistral", snaps[1].Provider)
	assert.Equal(t, "openai", snaps[2].Provider)

	assert.Equal(t, StateClosed, snaps[0].State)
	assert.Equal(t, 1, snaps[1].FailureCount)
}
