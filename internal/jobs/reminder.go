// Package jobs holds the scheduled background tasks of the assistant.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/beautydesk/salon-assistant/internal/booking"
	"github.com/beautydesk/salon-assistant/pkg/logging"
)

// Appointments is the slice of the booking store the reminder job needs.
type Appointments interface {
	ListForReminder(ctx context.Context, from, to time.Time) ([]booking.Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

// PhoneMessenger delivers WhatsApp messages addressed by phone number.
type PhoneMessenger interface {
	SendMessageToPhone(ctx context.Context, phone, name, content string) error
}

// ReminderJob messages every client with an appointment tomorrow, once.
type ReminderJob struct {
	appointments Appointments
	messenger    PhoneMessenger
	salonName    string
	location     *time.Location
	now          func() time.Time
	logger       *logging.Logger
}

// NewReminderJob wires the job. Location decides when "tomorrow" starts.
func NewReminderJob(appointments Appointments, messenger PhoneMessenger, salonName string, location *time.Location, logger *logging.Logger) *ReminderJob {
	if appointments == nil {
		panic("jobs: nil appointments")
	}
	if messenger == nil {
		panic("jobs: nil messenger")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderJob{
		appointments: appointments,
		messenger:    messenger,
		salonName:    salonName,
		location:     location,
		now:          func() time.Time { return time.Now().In(location) },
		logger:       logger,
	}
}

// Run sends pending reminders for tomorrow's appointments. A failed send is
// logged and skipped; the appointment stays unflagged so the next run
// retries it.
func (j *ReminderJob) Run(ctx context.Context) error {
	now := j.now().In(j.location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.location).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	appts, err := j.appointments.ListForReminder(ctx, from, to)
	if err != nil {
		return fmt.Errorf("jobs: list reminders: %w", err)
	}

	var sent int
	for _, a := range appts {
		if !deliverablePhone(a.ClientPhone) {
			j.logger.Debug("reminder skipped, no deliverable phone", "appointment_id", a.ID)
			continue
		}
		if err := j.messenger.SendMessageToPhone(ctx, a.ClientPhone, a.ClientName, j.message(a)); err != nil {
			j.logger.Warn("reminder send failed", "appointment_id", a.ID, "error", err)
			continue
		}
		if err := j.appointments.MarkReminderSent(ctx, a.ID); err != nil {
			j.logger.Warn("mark reminder sent failed", "appointment_id", a.ID, "error", err)
			continue
		}
		sent++
	}

	j.logger.Info("reminders processed", "due", len(appts), "sent", sent)
	return nil
}

func (j *ReminderJob) message(a booking.Appointment) string {
	starts := a.StartsAt.In(j.location)
	services := strings.Join(a.Services, ", ")
	return fmt.Sprintf(
		"¡Hola %s! Te recordamos tu cita de mañana a las %s en %s: %s. Si necesitas cambiarla, responde a este mensaje. ¡Te esperamos!",
		a.ClientName, starts.Format("15:04"), j.salonName, services)
}

// deliverablePhone filters the synthetic placeholders the reconciler writes
// for externally created events.
func deliverablePhone(phone string) bool {
	return phone != "" && phone != "desconocido" && !strings.HasPrefix(phone, "unknown_")
}
