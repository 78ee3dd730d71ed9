package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Record is the durable state kept per backend-model identity: the rolling
// list of recent call timestamps and the accumulated estimated cost.
type Record struct {
	Timestamps []time.Time
	TotalCost  float64
}

// Store persists usage records so that restarts do not reset quota
// tracking mid-window.
type Store interface {
	// Load reads every persisted record, keyed by identity.
	Load(ctx context.Context) (map[string]Record, error)

	// Save upserts the record for one identity.
	Save(ctx context.Context, identity string, rec Record) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

const createLedgerTable = `
	CREATE TABLE IF NOT EXISTS usage_ledger (
		identity   TEXT PRIMARY KEY,
		timestamps TEXT NOT NULL DEFAULT '[]',
		total_cost REAL NOT NULL DEFAULT 0
	)
`

// SQLStore is a Store backed by a local SQLite file through database/sql.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLStore opens (creating if needed) the ledger database at path.
func OpenSQLStore(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	// The ledger is written from request goroutines; a single connection
	// sidesteps SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	store := NewSQLStore(db, logger)
	if err := store.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("usage ledger opened", zap.String("path", path))
	return store, nil
}

// NewSQLStore wraps an existing database handle. Used by tests.
func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger,
	}
}

// init creates the ledger schema if it does not exist.
func (s *SQLStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createLedgerTable); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// Load reads every persisted record.
func (s *SQLStore) Load(ctx context.Context) (map[string]Record, error) {
	query := `
		SELECT identity, timestamps, total_cost
		FROM usage_ledger
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage ledger: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var identity, rawTimestamps string
		var totalCost float64
		if err := rows.Scan(&identity, &rawTimestamps, &totalCost); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}

		timestamps, err := decodeTimestamps(rawTimestamps)
		if err != nil {
			// A corrupt row loses its window history but keeps the cost.
			s.logger.Warn("discarding corrupt timestamp list",
				zap.String("identity", identity),
				zap.Error(err))
			timestamps = nil
		}

		records[identity] = Record{
			Timestamps: timestamps,
			TotalCost:  totalCost,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger rows: %w", err)
	}

	return records, nil
}

// Save upserts the record for one identity.
func (s *SQLStore) Save(ctx context.Context, identity string, rec Record) error {
	raw, err := encodeTimestamps(rec.Timestamps)
	if err != nil {
		return fmt.Errorf("failed to encode timestamps: %w", err)
	}

	query := `
		INSERT INTO usage_ledger (identity, timestamps, total_cost)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET
			timestamps = excluded.timestamps,
			total_cost = excluded.total_cost
	`

	if _, err := s.db.ExecContext(ctx, query, identity, raw, rec.TotalCost); err != nil {
		return fmt.Errorf("failed to save ledger record: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as a JSON array of epoch milliseconds.

func encodeTimestamps(ts []time.Time) (string, error) {
	millis := make([]int64, len(ts))
	for i, t := range ts {
		millis[i] = t.UnixMilli()
	}
	raw, err := json.Marshal(millis)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTimestamps(raw string) ([]time.Time, error) {
	var millis []int64
	if err := json.Unmarshal([]byte(raw), &millis); err != nil {
		return nil, err
	}
	ts := make([]time.Time, len(millis))
	for i, m := range millis {
		ts[i] = time.UnixMilli(m)
	}
	return ts, nil
}
