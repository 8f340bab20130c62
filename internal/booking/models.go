package booking

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of a salon appointment.
type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal reports whether the status admits no further transitions.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment is a scheduled visit, optionally linked to an external
// calendar event via CalendarEventID.
type Appointment struct {
	ID              uuid.UUID
	ClientPhone     string
	ClientName      string
	ConversationID  *int64
	Services        []string
	StylistName     string
	StartsAt        time.Time
	EndsAt          time.Time
	Price           float64
	Status          AppointmentStatus
	CalendarEventID *string
	Notes           string
	ReminderSent    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Service is a bookable salon service from the catalog.
type Service struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	Price           float64
	Active          bool
}

// Stylist is a member of the salon staff.
type Stylist struct {
	ID          uuid.UUID
	Name        string
	Specialties []string
	Active      bool
}
