package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleClient implements Port over the Google Calendar v3 API using a
// service account.
type GoogleClient struct {
	svc        *gcal.Service
	calendarID string
	location   *time.Location
}

// NewGoogleClient authenticates with service-account credentials and binds
// to one calendar. Timezone applies to all-day boundaries and slot math.
func NewGoogleClient(ctx context.Context, credentialsPath, calendarID, timezone string) (*GoogleClient, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("calendar: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse credentials: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar: load timezone %q: %w", timezone, err)
	}
	return &GoogleClient{svc: svc, calendarID: calendarID, location: loc}, nil
}

// ListEvents returns every non-cancelled event inside [from, to), expanding
// recurring events into single instances.
func (g *GoogleClient) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event
	pageToken := ""
	for {
		call := g.svc.Events.List(g.calendarID).
			Context(ctx).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(2500)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("calendar: list events: %w", err)
		}
		for _, item := range page.Items {
			ev, err := g.fromAPI(item)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// CreateEvent inserts a timed event and returns its id.
func (g *GoogleClient) CreateEvent(ctx context.Context, ev Event) (string, error) {
	created, err := g.svc.Events.Insert(g.calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: create event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event by id.
func (g *GoogleClient) DeleteEvent(ctx context.Context, eventID string) error {
	if err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("calendar: delete event %s: %w", eventID, err)
	}
	return nil
}

// BusyIntervals queries freebusy for the bound calendar.
func (g *GoogleClient) BusyIntervals(ctx context.Context, from, to time.Time) ([][2]time.Time, error) {
	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy: %w", err)
	}

	var busy [][2]time.Time
	for _, cal := range resp.Calendars {
		for _, span := range cal.Busy {
			start, err := time.Parse(time.RFC3339, span.Start)
			if err != nil {
				return nil, fmt.Errorf("calendar: parse busy start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, span.End)
			if err != nil {
				return nil, fmt.Errorf("calendar: parse busy end: %w", err)
			}
			busy = append(busy, [2]time.Time{start, end})
		}
	}
	return busy, nil
}

func (g *GoogleClient) fromAPI(item *gcal.Event) (Event, error) {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
	}
	if item.Start == nil || item.End == nil {
		ev.AllDay = true
		return ev, nil
	}
	if item.Start.DateTime == "" {
		// Date-only events span whole days.
		ev.AllDay = true
		start, err := time.ParseInLocation("2006-01-02", item.Start.Date, g.location)
		if err != nil {
			return Event{}, fmt.Errorf("calendar: parse all-day start: %w", err)
		}
		ev.Start = start
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("calendar: parse event start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return Event{}, fmt.Errorf("calendar: parse event end: %w", err)
	}
	ev.Start = start
	ev.End = end
	return ev, nil
}
