package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so callers can run store operations inside a
// transaction when a whole batch must commit atomically.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for appointments and the salon catalog.
type Store struct {
	db DB
}

// NewStore creates a new booking store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, client_phone, client_name, conversation_id, services, stylist_name,
	starts_at, ends_at, price, status, calendar_event_id, notes, reminder_sent, created_at, updated_at`

// Create inserts a new appointment.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, client_phone, client_name, conversation_id, services, stylist_name, starts_at, ends_at, price, status, calendar_event_id, notes, reminder_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.ClientPhone, a.ClientName, a.ConversationID, a.Services, a.StylistName,
		a.StartsAt, a.EndsAt, a.Price, string(a.Status), a.CalendarEventID, a.Notes,
		a.ReminderSent, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("booking: create appointment: %w", err)
	}
	return nil
}

// ListCalendarLinked returns appointments linked to a calendar event whose
// start falls inside [from, to). The reconciliation job walks this set.
func (s *Store) ListCalendarLinked(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE calendar_event_id IS NOT NULL AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: list calendar linked: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// UpdateTimes moves an appointment to the given start and end.
func (s *Store) UpdateTimes(ctx context.Context, id uuid.UUID, startsAt, endsAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments SET starts_at = $1, ends_at = $2, updated_at = $3
		WHERE id = $4`, startsAt, endsAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("booking: update times: %w", err)
	}
	return nil
}

// CancelWithNote cancels an appointment and appends an audit note. It is a
// no-op when the appointment already reached a terminal status, so finished
// or no-show visits are never rewritten.
func (s *Store) CancelWithNote(ctx context.Context, id uuid.UUID, note string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', notes = TRIM(BOTH E'\n' FROM notes || E'\n' || $1), updated_at = $2
		WHERE id = $3 AND status NOT IN ('completed', 'cancelled', 'no_show')`,
		note, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("booking: cancel with note: %w", err)
	}
	return nil
}

// ListForReminder returns not-yet-reminded appointments starting in [from, to).
func (s *Store) ListForReminder(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed') AND reminder_sent = FALSE
		  AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: list for reminder: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// MarkReminderSent flags an appointment so the reminder job never repeats it.
func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("booking: mark reminder sent: %w", err)
	}
	return nil
}

// ListActiveServices returns the bookable service catalog.
func (s *Store) ListActiveServices(ctx context.Context) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, duration_minutes, price, active
		FROM services
		WHERE active = TRUE
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("booking: list active services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var sv Service
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.DurationMinutes, &sv.Price, &sv.Active); err != nil {
			return nil, fmt.Errorf("booking: scan service: %w", err)
		}
		services = append(services, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list active services: %w", err)
	}
	return services, nil
}

// ListActiveStylists returns the active staff roster.
func (s *Store) ListActiveStylists(ctx context.Context) ([]Stylist, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, specialties, active
		FROM stylists
		WHERE active = TRUE
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("booking: list active stylists: %w", err)
	}
	defer rows.Close()

	var stylists []Stylist
	for rows.Next() {
		var st Stylist
		if err := rows.Scan(&st.ID, &st.Name, &st.Specialties, &st.Active); err != nil {
			return nil, fmt.Errorf("booking: scan stylist: %w", err)
		}
		stylists = append(stylists, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list active stylists: %w", err)
	}
	return stylists, nil
}

// SalonSettings returns the key/value profile of the salon (name, address,
// phone, schedule) used to ground the assistant's answers.
func (s *Store) SalonSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM salon_settings`)
	if err != nil {
		return nil, fmt.Errorf("booking: salon settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("booking: scan setting: %w", err)
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: salon settings: %w", err)
	}
	return settings, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var appointments []Appointment
	for rows.Next() {
		var a Appointment
		err := rows.Scan(
			&a.ID, &a.ClientPhone, &a.ClientName, &a.ConversationID, &a.Services,
			&a.StylistName, &a.StartsAt, &a.EndsAt, &a.Price, &a.Status,
			&a.CalendarEventID, &a.Notes, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("booking: scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: iterate appointments: %w", err)
	}
	return appointments, nil
}
