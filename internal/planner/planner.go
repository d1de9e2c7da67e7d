package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"freeslot/internal/ics"
	"freeslot/internal/meeting"
	"freeslot/internal/models"
)

var (
	ErrNoWindow      = errors.New("no meeting window available")
	ErrNoBooker      = errors.New("no calendar configured for booking")
	ErrSourcesFailed = errors.New("every event source failed")
)

// EventSource supplies calendar events. Sources that can look up arbitrary people
// use attendees; the others ignore it.
type EventSource interface {
	Name() string
	EventsBetween(ctx context.Context, start, end time.Time, attendees []string) ([]*models.Event, error)
}

// Booker writes a new event to a calendar.
type Booker interface {
	CreateEvent(ctx context.Context, event *models.Event) error
}

// Request describes the meeting to plan.
type Request struct {
	Date              time.Time
	Attendees         []string
	OptionalAttendees []string
	Duration          time.Duration
}

// Window is a slot in which the meeting can take place.
type Window struct {
	Start time.Time
	End   time.Time
	Range meeting.TimeRange
}

// Plan is the outcome of FindTimes.
type Plan struct {
	Day     time.Time
	Events  int
	Windows []Window
}

// Planner gathers a day of events from its sources and resolves meeting windows.
type Planner struct {
	logger   *slog.Logger
	sources  []EventSource
	booker   Booker
	dryRun   bool
	location *time.Location
}

// NewPlanner creates a new Planner. booker may be nil when booking is not needed.
func NewPlanner(logger *slog.Logger, sources []EventSource, booker Booker, dryRun bool, loc *time.Location) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{
		logger:   logger,
		sources:  sources,
		booker:   booker,
		dryRun:   dryRun,
		location: loc,
	}
}

// Location returns the time zone days are planned in.
func (p *Planner) Location() *time.Location { return p.location }

// FindTimes returns the windows on req.Date in which the meeting can be held.
// Events in extra are considered alongside those from the sources.
func (p *Planner) FindTimes(ctx context.Context, req Request, extra []*models.Event) (*Plan, error) {
	mreq, err := toMeetingRequest(req)
	if err != nil {
		return nil, err
	}

	dayStart := StartOfDay(req.Date, p.location)
	dayEnd := dayStart.AddDate(0, 0, 1)
	people := append(normalize(req.Attendees), normalize(req.OptionalAttendees)...)

	p.logger.Info("Planning meeting.", "day", dayStart.Format(time.DateOnly), "attendees", len(people), "duration", req.Duration)

	events, err := p.gather(ctx, dayStart, dayEnd, people)
	if err != nil {
		return nil, err
	}
	events = append(events, extra...)

	ranges := meeting.Query(ProjectDay(events, dayStart), mreq)

	plan := &Plan{Day: dayStart, Events: len(events), Windows: make([]Window, 0, len(ranges))}
	for _, r := range ranges {
		plan.Windows = append(plan.Windows, Window{
			Start: dayStart.Add(time.Duration(r.Start()) * time.Minute),
			End:   dayStart.Add(time.Duration(r.End()) * time.Minute),
			Range: r,
		})
	}
	p.logger.Info("Planning finished.", "events", plan.Events, "windows", len(plan.Windows))
	return plan, nil
}

// gather fetches events from every source concurrently. A failing source is
// logged and skipped unless all of them fail.
func (p *Planner) gather(ctx context.Context, start, end time.Time, people []string) ([]*models.Event, error) {
	var (
		mu     sync.Mutex
		events []*models.Event
		errs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.sources {
		g.Go(func() error {
			evs, err := src.EventsBetween(gctx, start, end, people)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Error("Could not fetch events from source", "source", src.Name(), "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
				return nil
			}
			p.logger.Debug("Fetched events from source", "source", src.Name(), "count", len(evs))
			events = append(events, evs...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.sources) > 0 && len(errs) == len(p.sources) {
		return nil, fmt.Errorf("%w: %w", ErrSourcesFailed, errors.Join(errs...))
	}
	return events, nil
}

// Book creates the meeting in the first window of plan.
func (p *Planner) Book(ctx context.Context, plan *Plan, title string, req Request) (*models.Event, error) {
	if plan == nil || len(plan.Windows) == 0 {
		return nil, ErrNoWindow
	}

	w := plan.Windows[0]
	uid := uuid.NewString()
	event := &models.Event{
		ID:        uid,
		UID:       uid,
		Title:     title,
		StartTime: w.Start,
		EndTime:   w.Start.Add(req.Duration),
		Attendees: append(normalize(req.Attendees), normalize(req.OptionalAttendees)...),
		Source:    "freeslot",
	}

	if p.dryRun {
		p.logger.Info("[DRY RUN] Would create meeting", "title", event.Title, "startTime", event.StartTime)
		return event, nil
	}
	if p.booker == nil {
		return nil, ErrNoBooker
	}

	if err := p.booker.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to book meeting: %w", err)
	}
	p.logger.Info("Booked meeting.", "title", event.Title, "startTime", event.StartTime, "uid", event.UID)
	return event, nil
}

// StartOfDay returns local midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ProjectDay maps events onto minutes of the day starting at dayStart.
// Events are clipped to the day; events outside it or blocking no time are dropped.
// Busy time is rounded outwards to whole minutes.
func ProjectDay(events []*models.Event, dayStart time.Time) []meeting.Event {
	dayLength := meeting.WholeDay.Duration()
	projected := make([]meeting.Event, 0, len(events))
	for _, ev := range events {
		if ev == nil || !ev.Blocks() {
			continue
		}
		start := floorMinutes(ev.StartTime.Sub(dayStart))
		end := ceilMinutes(ev.EndTime.Sub(dayStart))
		if end <= 0 || start >= dayLength {
			continue
		}
		when := meeting.FromStartEnd(max(start, 0), min(end, dayLength), false)
		projected = append(projected, meeting.NewEvent(ev.Title, when, normalize(ev.Attendees)...))
	}
	return projected
}

func toMeetingRequest(req Request) (*meeting.Request, error) {
	if req.Duration < 0 {
		return nil, fmt.Errorf("%w: %s", meeting.ErrNegativeDuration, req.Duration)
	}
	minutes := ceilMinutes(req.Duration)

	mreq := meeting.NewRequest(normalize(req.Attendees), minutes)
	for _, name := range normalize(req.OptionalAttendees) {
		mreq.AddOptionalAttendee(name)
	}
	if err := mreq.Validate(); err != nil {
		return nil, err
	}
	return mreq, nil
}

// normalize lower-cases attendee addresses and drops blanks.
func normalize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if a := ics.Address(n); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func floorMinutes(d time.Duration) int {
	m := d / time.Minute
	if d%time.Minute < 0 {
		m--
	}
	return int(m)
}

func ceilMinutes(d time.Duration) int {
	m := d / time.Minute
	if d%time.Minute > 0 {
		m++
	}
	return int(m)
}
