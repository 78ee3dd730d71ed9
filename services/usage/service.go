package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// retention is how long call timestamps are kept. Intentionally wider than
// the 60-second limiting window so recent history stays available for
// diagnostics.
const retention = 5 * time.Minute

// Service tracks, per backend-model identity, the rolling list of recent
// call timestamps and the accumulated estimated cost. Every mutation is
// flushed to the Store so restarts do not reset quota tracking mid-window.
type Service struct {
	mu      sync.Mutex
	records map[string]*Record
	store   Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a usage service backed by the given store.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		records: make(map[string]*Record),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Load seeds the in-memory state from the store. Called once at startup,
// before the service is shared.
func (s *Service) Load(ctx context.Context) error {
	persisted, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention)
	for identity, rec := range persisted {
		r := rec
		r.Timestamps = pruneBefore(r.Timestamps, cutoff)
		s.records[identity] = &r
	}

	s.logger.Info("usage ledger loaded", zap.Int("identities", len(s.records)))
	return nil
}

// RecordCall appends the current time to the identity's timestamp list,
// prunes entries past retention, and flushes. Recording happens whether or
// not the call ultimately succeeds.
func (s *Service) RecordCall(ctx context.Context, identity string) {
	s.mu.Lock()
	rec := s.record(identity)
	rec.Timestamps = append(rec.Timestamps, s.now())
	rec.Timestamps = pruneBefore(rec.Timestamps, s.now().Add(-retention))
	snapshot := cloneRecord(rec)
	s.mu.Unlock()

	s.flush(ctx, identity, snapshot)
}

// AddCost accumulates estimated cost for the identity and flushes.
func (s *Service) AddCost(ctx context.Context, identity string, cost float64) {
	if cost <= 0 {
		return
	}

	s.mu.Lock()
	rec := s.record(identity)
	rec.TotalCost += cost
	snapshot := cloneRecord(rec)
	s.mu.Unlock()

	s.flush(ctx, identity, snapshot)
}

// CountSince returns how many calls the identity has recorded within the
// trailing window.
func (s *Service) CountSince(identity string, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return 0
	}

	cutoff := s.now().Add(-window)
	count := 0
	for _, ts := range rec.Timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// TotalCost returns the accumulated estimated cost for the identity.
func (s *Service) TotalCost(identity string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return 0
	}
	return rec.TotalCost
}

// IdentityUsage is a read-only view of one identity's usage.
type IdentityUsage struct {
	Identity         string  `json:"identity"`
	CallsLastMinute  int     `json:"calls_last_minute"`
	CallsLastFiveMin int     `json:"calls_last_five_minutes"`
	TotalCost        float64 `json:"total_cost"`
}

// Snapshot returns usage views for all tracked identities, sorted by key.
func (s *Service) Snapshot() []IdentityUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]IdentityUsage, 0, len(s.records))
	for identity, rec := range s.records {
		view := IdentityUsage{
			Identity:  identity,
			TotalCost: rec.TotalCost,
		}
		for _, ts := range rec.Timestamps {
			if ts.After(now.Add(-time.Minute)) {
				view.CallsLastMinute++
			}
			if ts.After(now.Add(-retention)) {
				view.CallsLastFiveMin++
			}
		}
		out = append(out, view)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// record returns the identity's record, creating it lazily. Caller holds mu.
func (s *Service) record(identity string) *Record {
	rec, ok := s.records[identity]
	if !ok {
		rec = &Record{}
		s.records[identity] = rec
	}
	return rec
}

// flush persists one record. A store failure is logged but does not fail
// the call: the gateway stays available and the in-memory window remains
// authoritative for the process lifetime.
func (s *Service) flush(ctx context.Context, identity string, rec Record) {
	if err := s.store.Save(ctx, identity, rec); err != nil {
		s.logger.Error("failed to flush usage record",
			zap.String("identity", identity),
			zap.Error(err))
	}
}

// cloneRecord copies the record with its own timestamp backing array, so
// flush can read it after the mutex is released while pruneBefore reuses
// the live record's array in place. Caller holds mu.
func cloneRecord(rec *Record) Record {
	return Record{
		Timestamps: append([]time.Time(nil), rec.Timestamps...),
		TotalCost:  rec.TotalCost,
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
