package conversation

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

// Record is the durable per-conversation state. The primary key is the
// provider's conversation id.
type Record struct {
	ID            int64
	ContactID     int64
	Phone         string
	Name          string
	BotActive     bool
	PausedReason  string
	PausedBy      string
	PausedAt      *time.Time
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store provides persistence for conversation records.
type Store struct {
	db DB
}

// NewStore creates a new conversation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, contact_id, phone, name, bot_active, paused_reason, paused_by, paused_at,
	last_message_at, created_at, updated_at`

// GetOrCreate upserts the record for a conversation id and bumps its
// last_message_at. A name or phone observed later backfills a record created
// without one, but never overwrites a real value. Placeholder phones
// ("desconocido", "unknown_<id>") count as absent, so the first message
// carrying the customer's real number replaces them.
func (s *Store) GetOrCreate(ctx context.Context, conversationID, contactID int64, phone, name string) (*Record, error) {
	now := time.Now().UTC()
	var r Record
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, contact_id, phone, name, bot_active, paused_reason, paused_by, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, '', '', $5, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			last_message_at = EXCLUDED.last_message_at,
			updated_at = EXCLUDED.updated_at,
			name = CASE WHEN conversations.name = '' THEN EXCLUDED.name ELSE conversations.name END,
			phone = CASE
				WHEN conversations.phone = '' OR conversations.phone = 'desconocido' OR conversations.phone LIKE 'unknown\_%'
				THEN EXCLUDED.phone
				ELSE conversations.phone
			END
		RETURNING `+recordColumns,
		conversationID, contactID, phone, name, now,
	).Scan(
		&r.ID, &r.ContactID, &r.Phone, &r.Name, &r.BotActive, &r.PausedReason,
		&r.PausedBy, &r.PausedAt, &r.LastMessageAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation: get or create: %w", err)
	}
	return &r, nil
}

// Pause suspends the bot for a conversation, recording why and on whose
// behalf. Idempotent: pausing an already paused conversation rewrites the
// reason and timestamp.
func (s *Store) Pause(ctx context.Context, conversationID int64, reason, actor string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET bot_active = FALSE, paused_reason = $1, paused_by = $2, paused_at = $3, updated_at = $3
		WHERE id = $4`, reason, actor, now, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: pause: %w", err)
	}
	return nil
}

// Reactivate restores the bot for a conversation and clears the pause
// bookkeeping.
func (s *Store) Reactivate(ctx context.Context, conversationID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET bot_active = TRUE, paused_reason = '', paused_by = '', paused_at = NULL, updated_at = $1
		WHERE id = $2`, time.Now().UTC(), conversationID)
	if err != nil {
		return fmt.Errorf("conversation: reactivate: %w", err)
	}
	return nil
}

// Get returns the record for a conversation id, or nil when unknown.
func (s *Store) Get(ctx context.Context, conversationID int64) (*Record, error) {
	var r Record
	err := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE id = $1`, conversationID).Scan(
		&r.ID, &r.ContactID, &r.Phone, &r.Name, &r.BotActive, &r.PausedReason,
		&r.PausedBy, &r.PausedAt, &r.LastMessageAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	return &r, nil
}

// ActiveHandoffKeywords returns the phrases that trigger a human handoff.
func (s *Store) ActiveHandoffKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT phrase FROM handoff_keywords WHERE active = TRUE ORDER BY phrase ASC`)
	if err != nil {
		return nil, fmt.Errorf("conversation: handoff keywords: %w", err)
	}
	defer rows.Close()

	var phrases []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("conversation: scan keyword: %w", err)
		}
		phrases = append(phrases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: handoff keywords: %w", err)
	}
	return phrases, nil
}
