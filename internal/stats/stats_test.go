package stats

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRecordCountersOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO daily_stats").
		WithArgs(2, 0, 0, 1, 0, 0, 0.0, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Record(context.Background(), Delta{MessagesReceived: 2, HandoffsToHuman: 1})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordWithLatencySample(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO daily_stats").
		WithArgs(0, 1, 1, 0, 0, 0, 2.5, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Record(context.Background(), Delta{
		BatchesProcessed: 1,
		ResponsesSent:    1,
		ResponseLatency:  2500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestForDayNoActivity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM daily_stats").
		WithArgs(day).
		WillReturnRows(pgxmock.NewRows([]string{
			"day", "messages_received", "batches_processed", "responses_sent",
			"handoffs_to_human", "rate_limited", "errors", "avg_response_seconds", "latency_samples",
		}))

	snap, err := store.ForDay(context.Background(), day)
	if err != nil {
		t.Fatalf("for day: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}
