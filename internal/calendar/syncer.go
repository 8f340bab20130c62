package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beautydesk/salon-assistant/internal/booking"
	"github.com/beautydesk/salon-assistant/internal/observability/metrics"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// Audit notes written by the reconciler.
const (
	noteCancelledFromCalendar = "Cancelada automáticamente: evento eliminado del calendario"
	noteSyncedFromCalendar    = "Sincronizado desde Google Calendar"

	unknownPhone = "desconocido"
)

// TxBeginner opens database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Syncer periodically reconciles the appointment book against the external
// calendar. The calendar is authoritative for existence and timing: events
// without an appointment create one, moved events reschedule, and vanished
// events cancel their appointment.
type Syncer struct {
	calendar   Port
	db         TxBeginner
	metrics    *metrics.SyncMetrics
	logger     *logging.Logger
	pastDays   int
	futureDays int
	now        func() time.Time

	tick <-chan time.Time
	stop func()
}

// SyncerConfig wires a Syncer. Tick/Stop let tests drive the loop; when nil
// a ticker on Interval is used.
type SyncerConfig struct {
	Calendar   Port
	DB         TxBeginner
	Metrics    *metrics.SyncMetrics
	Logger     *logging.Logger
	PastDays   int
	FutureDays int
	Interval   time.Duration

	Now  func() time.Time
	Tick <-chan time.Time
	Stop func()
}

// NewSyncer validates the config and builds the reconciliation loop.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Calendar == nil {
		return nil, errors.New("calendar: syncer requires calendar port")
	}
	if cfg.DB == nil {
		return nil, errors.New("calendar: syncer requires database")
	}

	pastDays := cfg.PastDays
	if pastDays <= 0 {
		pastDays = 7
	}
	futureDays := cfg.FutureDays
	if futureDays <= 0 {
		futureDays = 30
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tick := cfg.Tick
	stop := cfg.Stop
	if tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		ticker := time.NewTicker(interval)
		tick = ticker.C
		stop = ticker.Stop
	}

	return &Syncer{
		calendar:   cfg.Calendar,
		db:         cfg.DB,
		metrics:    cfg.Metrics,
		logger:     logger,
		pastDays:   pastDays,
		futureDays: futureDays,
		now:        now,
		tick:       tick,
		stop:       stop,
	}, nil
}

// Start runs an immediate reconciliation and then one per tick until the
// context is cancelled.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	defer func() {
		if s.stop != nil {
			s.stop()
		}
	}()

	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("calendar sync failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.tick:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("calendar sync failed", "error", err)
			}
		}
	}
}

// SyncOnce runs one reconciliation pass inside a single transaction. A
// calendar listing failure aborts the run before any write: a degraded
// listing must never be mistaken for mass deletion.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	now := s.now()
	from := now.AddDate(0, 0, -s.pastDays)
	to := now.AddDate(0, 0, s.futureDays)

	events, err := s.calendar.ListEvents(ctx, from, to)
	if err != nil {
		s.metrics.ObserveRun("list_error")
		return fmt.Errorf("calendar: sync aborted: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.metrics.ObserveRun("db_error")
		return fmt.Errorf("calendar: begin sync tx: %w", err)
	}
	defer tx.Rollback(ctx)

	store := booking.NewStore(tx)
	linked, err := store.ListCalendarLinked(ctx, from, to)
	if err != nil {
		s.metrics.ObserveRun("db_error")
		return err
	}

	byEventID := make(map[string]booking.Appointment, len(linked))
	for _, a := range linked {
		byEventID[*a.CalendarEventID] = a
	}

	stylists, err := store.ListActiveStylists(ctx)
	if err != nil {
		s.metrics.ObserveRun("db_error")
		return err
	}

	var created, updated, cancelled int
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		if ev.AllDay || ev.ID == "" {
			continue
		}
		seen[ev.ID] = true

		appt, ok := byEventID[ev.ID]
		if !ok {
			if err := s.createFromEvent(ctx, store, stylists, ev); err != nil {
				s.metrics.ObserveRun("db_error")
				return err
			}
			created++
			continue
		}
		if !appt.StartsAt.Equal(ev.Start) || !appt.EndsAt.Equal(ev.End) {
			if err := store.UpdateTimes(ctx, appt.ID, ev.Start, ev.End); err != nil {
				s.metrics.ObserveRun("db_error")
				return err
			}
			updated++
		}
	}

	for eventID, appt := range byEventID {
		if seen[eventID] || appt.Status.Terminal() {
			continue
		}
		if err := store.CancelWithNote(ctx, appt.ID, noteCancelledFromCalendar); err != nil {
			s.metrics.ObserveRun("db_error")
			return err
		}
		cancelled++
	}

	if err := tx.Commit(ctx); err != nil {
		s.metrics.ObserveRun("db_error")
		return fmt.Errorf("calendar: commit sync tx: %w", err)
	}

	s.metrics.ObserveRun("ok")
	s.metrics.ObserveChange("created", created)
	s.metrics.ObserveChange("updated", updated)
	s.metrics.ObserveChange("cancelled", cancelled)
	if created+updated+cancelled > 0 {
		s.logger.Info("calendar reconciled",
			"events", len(events), "created", created, "updated", updated, "cancelled", cancelled)
	}
	return nil
}

func (s *Syncer) createFromEvent(ctx context.Context, store *booking.Store, stylists []booking.Stylist, ev Event) error {
	services, clientName := ParseSummary(ev.Summary)
	if len(services) == 0 {
		services = []string{"Servicio"}
	}
	phone, price, stylist := ParseDescription(ev.Description)
	if phone == "" {
		phone = unknownPhone
	}
	stylist = canonicalStylist(stylist, stylists)

	eventID := ev.ID
	return store.Create(ctx, &booking.Appointment{
		ClientPhone:     phone,
		ClientName:      clientName,
		Services:        services,
		StylistName:     stylist,
		StartsAt:        ev.Start,
		EndsAt:          ev.End,
		Price:           price,
		Status:          booking.StatusConfirmed,
		CalendarEventID: &eventID,
		Notes:           noteSyncedFromCalendar,
	})
}

// canonicalStylist maps a hand-typed stylist label onto the active roster,
// preserving the roster's spelling. Unknown names pass through as written.
func canonicalStylist(name string, stylists []booking.Stylist) string {
	if name == "" {
		return defaultStylist
	}
	for _, st := range stylists {
		if strings.EqualFold(st.Name, name) {
			return st.Name
		}
	}
	return name
}
