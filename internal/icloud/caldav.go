package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"freeslot/internal/ics"
	"freeslot/internal/models"
)

const (
	// Endpoint is the iCloud CalDAV root.
	Endpoint = "https://caldav.icloud.com/"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "freeslot/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient is a client for interacting with a CalDAV server (iCloud).
type CalDAVClient struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	endpoint     string
	calendarName string
	calendarPath string
	owner        string
}

// NewClient creates and initializes a new CalDAVClient for the calendar named calendarName.
// The endpoint defaults to iCloud when empty.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = Endpoint
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{
		caldavClient: caldavClient,
		logger:       logger,
		endpoint:     endpoint,
		calendarName: calendarName,
	}
	if strings.Contains(username, "@") {
		c.owner = ics.Address(username)
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// Name identifies the calendar this client reads.
func (c *CalDAVClient) Name() string {
	return "icloud-" + c.calendarName
}

// EventsBetween returns the calendar's events overlapping [start, end).
// Floating times are read in start's location.
func (c *CalDAVClient) EventsBetween(ctx context.Context, start, end time.Time, _ []string) ([]*models.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: start, End: end}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	var events []*models.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		evs, err := ics.FromCalendar(obj.Data, start.Location(), c.Name())
		if err != nil {
			c.logger.Warn("Skipping unreadable calendar object", "path", obj.Path, "error", err)
			continue
		}
		for _, ev := range evs {
			c.addOwner(ev)
		}
		events = append(events, evs...)
	}

	c.logger.Info("Successfully fetched events from CalDAV", "count", len(events), "calendar", c.calendarName)
	return events, nil
}

// addOwner marks the calendar owner as busy during every event on the calendar.
func (c *CalDAVClient) addOwner(ev *models.Event) {
	if c.owner != "" && !slices.Contains(ev.Attendees, c.owner) {
		ev.Attendees = append(ev.Attendees, c.owner)
	}
}

// CreateEvent uploads a new event to the calendar as <UID>.ics.
func (c *CalDAVClient) CreateEvent(ctx context.Context, event *models.Event) error {
	c.logger.Debug("Creating event on CalDAV server", "eventTitle", event.Title, "uid", event.UID)

	eventPath := path.Join(c.calendarPath, fmt.Sprintf("%s.ics", event.UID))
	if _, err := c.caldavClient.PutCalendarObject(ctx, eventPath, ics.NewCalendar(event)); err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	c.logger.Info("Successfully created event on CalDAV server", "eventTitle", event.Title, "path", eventPath)
	return nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	return matchCalendar(calendars, name)
}

func matchCalendar(calendars []caldav.Calendar, name string) (string, error) {
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
