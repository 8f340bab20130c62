package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautydesk/salon-assistant/internal/booking"
)

type fakeAppointments struct {
	appts    []booking.Appointment
	listErr  error
	marked   []uuid.UUID
	gotFrom  time.Time
	gotTo    time.Time
}

func (f *fakeAppointments) ListForReminder(_ context.Context, from, to time.Time) ([]booking.Appointment, error) {
	f.gotFrom, f.gotTo = from, to
	return f.appts, f.listErr
}

func (f *fakeAppointments) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakePhoneMessenger struct {
	sent    map[string]string
	sendErr error
}

func (f *fakePhoneMessenger) SendMessageToPhone(_ context.Context, phone, _, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[phone] = content
	return nil
}

func TestReminderJobSendsAndMarks(t *testing.T) {
	id := uuid.New()
	appts := &fakeAppointments{appts: []booking.Appointment{{
		ID:          id,
		ClientPhone: "+525551234567",
		ClientName:  "Ana",
		Services:    []string{"Corte", "Tinte"},
		StartsAt:    time.Date(2026, 8, 26, 16, 30, 0, 0, time.UTC),
	}}}
	messenger := &fakePhoneMessenger{}

	job := NewReminderJob(appts, messenger, "Salón Bella", time.UTC, nil)
	job.now = func() time.Time { return time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))

	// The window is exactly tomorrow in salon time.
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), appts.gotFrom)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), appts.gotTo)

	msg := messenger.sent["+525551234567"]
	assert.Contains(t, msg, "Ana")
	assert.Contains(t, msg, "16:30")
	assert.Contains(t, msg, "Corte, Tinte")
	assert.Contains(t, msg, "Salón Bella")
	assert.Equal(t, []uuid.UUID{id}, appts.marked)
}

func TestReminderJobSkipsUndeliverablePhones(t *testing.T) {
	appts := &fakeAppointments{appts: []booking.Appointment{
		{ID: uuid.New(), ClientPhone: "desconocido", ClientName: "Externo"},
		{ID: uuid.New(), ClientPhone: "unknown_42", ClientName: "Externo"},
	}}
	messenger := &fakePhoneMessenger{}

	job := NewReminderJob(appts, messenger, "Salón Bella", time.UTC, nil)
	require.NoError(t, job.Run(context.Background()))

	assert.Empty(t, messenger.sent)
	assert.Empty(t, appts.marked)
}

func TestReminderJobLeavesFailedSendsUnmarked(t *testing.T) {
	appts := &fakeAppointments{appts: []booking.Appointment{{
		ID:          uuid.New(),
		ClientPhone: "+525551234567",
		ClientName:  "Ana",
		StartsAt:    time.Now().Add(24 * time.Hour),
	}}}
	messenger := &fakePhoneMessenger{sendErr: errors.New("chatwoot down")}

	job := NewReminderJob(appts, messenger, "Salón Bella", time.UTC, nil)
	require.NoError(t, job.Run(context.Background()))

	// Next run retries.
	assert.Empty(t, appts.marked)
}

func TestReminderJobPropagatesListError(t *testing.T) {
	appts := &fakeAppointments{listErr: errors.New("db down")}
	job := NewReminderJob(appts, &fakePhoneMessenger{}, "Salón Bella", time.UTC, nil)
	assert.Error(t, job.Run(context.Background()))
}
