// Package stats accumulates per-day operational counters for the assistant.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Delta is one increment applied to today's row. Zero-valued fields leave
// their counters untouched.
type Delta struct {
	MessagesReceived int
	BatchesProcessed int
	ResponsesSent    int
	HandoffsToHuman  int
	RateLimited      int
	Errors           int
	// ResponseLatency folds one sample into the daily running average when
	// non-zero.
	ResponseLatency time.Duration
}

// Snapshot is one day's accumulated counters.
type Snapshot struct {
	Day                time.Time
	MessagesReceived   int
	BatchesProcessed   int
	ResponsesSent      int
	HandoffsToHuman    int
	RateLimited        int
	Errors             int
	AvgResponseSeconds float64
	LatencySamples     int
}

// Store persists daily statistics.
type Store struct {
	db DB
}

// NewStore creates a new stats store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Record applies a delta to today's row in a single statement. The running
// average is folded server-side, avg' = (avg*n + sample*m) / (n+m), so
// concurrent writers never race a read-modify-write cycle.
func (s *Store) Record(ctx context.Context, d Delta) error {
	samples := 0
	seconds := 0.0
	if d.ResponseLatency > 0 {
		samples = 1
		seconds = d.ResponseLatency.Seconds()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO daily_stats (day, messages_received, batches_processed, responses_sent, handoffs_to_human, rate_limited, errors, avg_response_seconds, latency_samples)
		VALUES (CURRENT_DATE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (day) DO UPDATE SET
			messages_received = daily_stats.messages_received + EXCLUDED.messages_received,
			batches_processed = daily_stats.batches_processed + EXCLUDED.batches_processed,
			responses_sent = daily_stats.responses_sent + EXCLUDED.responses_sent,
			handoffs_to_human = daily_stats.handoffs_to_human + EXCLUDED.handoffs_to_human,
			rate_limited = daily_stats.rate_limited + EXCLUDED.rate_limited,
			errors = daily_stats.errors + EXCLUDED.errors,
			avg_response_seconds = CASE
				WHEN EXCLUDED.latency_samples > 0 THEN
					(daily_stats.avg_response_seconds * daily_stats.latency_samples + EXCLUDED.avg_response_seconds * EXCLUDED.latency_samples)
					/ (daily_stats.latency_samples + EXCLUDED.latency_samples)
				ELSE daily_stats.avg_response_seconds
			END,
			latency_samples = daily_stats.latency_samples + EXCLUDED.latency_samples`,
		d.MessagesReceived, d.BatchesProcessed, d.ResponsesSent,
		d.HandoffsToHuman, d.RateLimited, d.Errors, seconds, samples,
	)
	if err != nil {
		return fmt.Errorf("stats: record delta: %w", err)
	}
	return nil
}

// ForDay returns the snapshot for a given day, or nil when no activity was
// recorded.
func (s *Store) ForDay(ctx context.Context, day time.Time) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRow(ctx, `
		SELECT day, messages_received, batches_processed, responses_sent, handoffs_to_human, rate_limited, errors, avg_response_seconds, latency_samples
		FROM daily_stats
		WHERE day = $1`, day).Scan(
		&snap.Day, &snap.MessagesReceived, &snap.BatchesProcessed, &snap.ResponsesSent,
		&snap.HandoffsToHuman, &snap.RateLimited, &snap.Errors,
		&snap.AvgResponseSeconds, &snap.LatencySamples,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats: for day: %w", err)
	}
	return &snap, nil
}
