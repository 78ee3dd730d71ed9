package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inference-gateway/models"
)

// Window is the trailing decision window for per-minute limits.
const Window = time.Minute

// UsageTracker is the slice of the usage service the limiter needs: the
// per-identity timestamp list and its recorder.
type UsageTracker interface {
	RecordCall(ctx context.Context, identity string)
	CountSince(identity string, window time.Duration) int
}

// IdentitySource resolves an identity key to its static metadata.
type IdentitySource interface {
	Lookup(identity string) (models.BackendModel, bool)
}

// Limiter answers "is this identity currently rate-limited?" from the
// sliding call-timestamp window. This is an approximation, not an exact
// token bucket: recording is not synchronized against concurrent
// executions of the same identity, so a parallel burst can transiently
// overshoot the nominal limit until the next selection round observes it.
type Limiter struct {
	usage      UsageTracker
	identities IdentitySource
	logger     *zap.Logger
}

// NewLimiter creates a rate limiter over the given usage tracker.
func NewLimiter(usage UsageTracker, identities IdentitySource, logger *zap.Logger) *Limiter {
	return &Limiter{
		usage:      usage,
		identities: identities,
		logger:     logger,
	}
}

// IsLimited reports whether the identity has already used its per-minute
// quota within the trailing 60 seconds. Unknown identities and identities
// with an unbounded limit are never limited.
func (l *Limiter) IsLimited(identity string) bool {
	m, ok := l.identities.Lookup(identity)
	if !ok || m.Unbounded() {
		return false
	}

	count := l.usage.CountSince(identity, Window)
	limited := count >= m.RequestsPerMinute

	if limited {
		l.logger.Debug("identity rate limited",
			zap.String("identity", identity),
			zap.Int("calls_in_window", count),
			zap.Int("limit", m.RequestsPerMinute))
	}

	return limited
}

// Record appends the current call to the identity's window. Unbounded
// identities record too, for cost and usage reporting.
func (l *Limiter) Record(ctx context.Context, identity string) {
	l.usage.RecordCall(ctx, identity)
}
