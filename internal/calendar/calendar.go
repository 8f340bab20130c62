// Package calendar integrates the salon's Google Calendar with the
// appointment book and keeps both sides reconciled.
package calendar

import (
	"context"
	"time"
)

// Event is a calendar entry in the shape the reconciler works with.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	// AllDay marks date-only entries (vacations, closures). The reconciler
	// never treats them as appointments.
	AllDay bool
}

// Port is the calendar backend the syncer and booking flows depend on.
type Port interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, ev Event) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
	// BusyIntervals returns the occupied spans inside [from, to).
	BusyIntervals(ctx context.Context, from, to time.Time) ([][2]time.Time, error)
}

// AvailableSlots derives bookable start times of the given duration from a
// set of busy intervals, walking the window on a fixed step.
func AvailableSlots(from, to time.Time, busy [][2]time.Time, duration, step time.Duration) []time.Time {
	if step <= 0 {
		step = 30 * time.Minute
	}
	var slots []time.Time
	for start := from; !start.Add(duration).After(to); start = start.Add(step) {
		end := start.Add(duration)
		free := true
		for _, b := range busy {
			if start.Before(b[1]) && b[0].Before(end) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, start)
		}
	}
	return slots
}
