package google

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"freeslot/internal/ics"
	"freeslot/internal/models"
)

// FreeBusySource reads busy blocks of arbitrary attendees through the FreeBusy API.
// It works for anyone whose calendar shares free/busy information with the account.
type FreeBusySource struct {
	client *CalendarClient
}

// FreeBusy returns a source backed by this client's credentials.
func (c *CalendarClient) FreeBusy() *FreeBusySource {
	return &FreeBusySource{client: c}
}

// Name identifies the account used for lookups.
func (s *FreeBusySource) Name() string {
	return "google-freebusy-" + s.client.account
}

// EventsBetween returns one event per busy block of each attendee.
func (s *FreeBusySource) EventsBetween(ctx context.Context, start, end time.Time, attendees []string) ([]*models.Event, error) {
	if len(attendees) == 0 {
		return nil, nil
	}

	req := &calendar.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: end.Format(time.RFC3339),
	}
	for _, a := range attendees {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: a})
	}

	resp, err := s.client.service.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}

	var events []*models.Event
	for id, cal := range resp.Calendars {
		for _, e := range cal.Errors {
			s.client.logger.Warn("Free/busy unavailable for attendee", "attendee", id, "reason", e.Reason)
		}
		for _, period := range cal.Busy {
			bStart, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			bEnd, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			events = append(events, &models.Event{
				Title:     "Busy",
				StartTime: bStart,
				EndTime:   bEnd,
				Attendees: []string{ics.Address(id)},
				Source:    s.Name(),
			})
		}
	}
	s.client.logger.Debug("Fetched free/busy blocks", "attendees", len(attendees), "blocks", len(events))
	return events, nil
}

// DiscoverGoogleCalendars finds all calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverGoogleCalendars(ctx context.Context) ([]string, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}
