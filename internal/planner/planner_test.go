package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"freeslot/internal/meeting"
	"freeslot/internal/models"
)

type fakeSource struct {
	name   string
	events []*models.Event
	err    error
	seen   []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) EventsBetween(_ context.Context, _, _ time.Time, attendees []string) ([]*models.Event, error) {
	f.seen = attendees
	return f.events, f.err
}

// MockBooker is a mock of the Booker interface
type MockBooker struct {
	mock.Mock
}

func (m *MockBooker) CreateEvent(ctx context.Context, event *models.Event) error {
	return m.Called(ctx, event).Error(0)
}

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func busy(title string, start, end time.Time, attendees ...string) *models.Event {
	return &models.Event{Title: title, StartTime: start, EndTime: end, Attendees: attendees}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlanner_FindTimes(t *testing.T) {
	t.Parallel()

	source := &fakeSource{name: "work", events: []*models.Event{
		busy("Event 1", at(8, 0), at(8, 30), "alice@example.com"),
		busy("Event 2", at(9, 0), at(9, 30), "BOB@example.com"),
		busy("Elsewhere", at(12, 0), at(13, 0), "carol@example.com"),
	}}
	p := NewPlanner(discard(), []EventSource{source}, nil, false, time.UTC)

	plan, err := p.FindTimes(context.Background(), Request{
		Date:      at(15, 0),
		Attendees: []string{"Alice@example.com", "bob@example.com"},
		Duration:  30 * time.Minute,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, day, plan.Day)
	assert.Equal(t, 3, plan.Events)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, source.seen)
	require.Len(t, plan.Windows, 3)
	assert.Equal(t, day, plan.Windows[0].Start)
	assert.Equal(t, at(8, 0), plan.Windows[0].End)
	assert.Equal(t, at(8, 30), plan.Windows[1].Start)
	assert.Equal(t, at(9, 0), plan.Windows[1].End)
	assert.Equal(t, at(9, 30), plan.Windows[2].Start)
	assert.Equal(t, day.AddDate(0, 0, 1), plan.Windows[2].End)
	assert.Equal(t, meeting.FromStartEnd(meeting.MinutesOf(9, 30), meeting.EndOfDay, true), plan.Windows[2].Range)
}

func TestPlanner_FindTimes_ExtraEventsAndZones(t *testing.T) {
	t.Parallel()

	cet := time.FixedZone("CET", 3600)
	p := NewPlanner(discard(), nil, nil, false, cet)

	extra := []*models.Event{
		// 07:00Z is 08:00 CET; the event spills over from the previous evening.
		busy("Overnight", time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC), "alice@example.com"),
		busy("Late", time.Date(2026, 10, 19, 17, 0, 0, 0, cet), time.Date(2026, 10, 20, 9, 0, 0, 0, cet), "alice@example.com"),
	}

	plan, err := p.FindTimes(context.Background(), Request{
		Date:      time.Date(2026, 10, 19, 12, 0, 0, 0, cet),
		Attendees: []string{"alice@example.com"},
		Duration:  time.Hour,
	}, extra)
	require.NoError(t, err)
	require.Len(t, plan.Windows, 1)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, cet), plan.Windows[0].Start)
	assert.Equal(t, time.Date(2026, 10, 19, 17, 0, 0, 0, cet), plan.Windows[0].End)
}

func TestPlanner_FindTimes_Sources(t *testing.T) {
	t.Parallel()

	req := Request{Date: day, Attendees: []string{"alice@example.com"}, Duration: 30 * time.Minute}

	t.Run("failing source is skipped", func(t *testing.T) {
		t.Parallel()

		ok := &fakeSource{name: "ok", events: []*models.Event{busy("Event", at(0, 0), at(12, 0), "alice@example.com")}}
		broken := &fakeSource{name: "broken", err: errors.New("boom")}
		p := NewPlanner(discard(), []EventSource{ok, broken}, nil, false, time.UTC)

		plan, err := p.FindTimes(context.Background(), req, nil)
		require.NoError(t, err)
		require.Len(t, plan.Windows, 1)
		assert.Equal(t, at(12, 0), plan.Windows[0].Start)
	})

	t.Run("all sources failing", func(t *testing.T) {
		t.Parallel()

		broken := &fakeSource{name: "broken", err: errors.New("boom")}
		p := NewPlanner(discard(), []EventSource{broken}, nil, false, time.UTC)

		_, err := p.FindTimes(context.Background(), req, nil)
		require.ErrorIs(t, err, ErrSourcesFailed)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := NewPlanner(discard(), []EventSource{&fakeSource{name: "ok"}}, nil, false, time.UTC)

		_, err := p.FindTimes(ctx, req, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPlanner_FindTimes_InvalidRequest(t *testing.T) {
	t.Parallel()

	p := NewPlanner(discard(), nil, nil, false, nil)
	assert.Equal(t, time.UTC, p.Location())

	_, err := p.FindTimes(context.Background(), Request{Date: day, Duration: -time.Minute}, nil)
	require.ErrorIs(t, err, meeting.ErrNegativeDuration)

	_, err = p.FindTimes(context.Background(), Request{
		Date:              day,
		Attendees:         []string{"alice@example.com"},
		OptionalAttendees: []string{"ALICE@example.com"},
		Duration:          time.Minute,
	}, nil)
	require.ErrorIs(t, err, meeting.ErrAttendeeConflict)
}

func TestPlanner_Book(t *testing.T) {
	t.Parallel()

	req := Request{
		Date:              day,
		Attendees:         []string{"alice@example.com"},
		OptionalAttendees: []string{"bob@example.com"},
		Duration:          45 * time.Minute,
	}
	plan := &Plan{Day: day, Windows: []Window{{Start: at(10, 0), End: at(12, 0)}}}

	t.Run("creates event in first window", func(t *testing.T) {
		t.Parallel()

		booker := new(MockBooker)
		booker.On("CreateEvent", mock.Anything, mock.MatchedBy(func(ev *models.Event) bool {
			return ev.Title == "Planning" && ev.StartTime.Equal(at(10, 0)) && ev.EndTime.Equal(at(10, 45))
		})).Return(nil)

		p := NewPlanner(discard(), nil, booker, false, time.UTC)
		ev, err := p.Book(context.Background(), plan, "Planning", req)
		require.NoError(t, err)
		assert.NotEmpty(t, ev.UID)
		assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, ev.Attendees)
		booker.AssertExpectations(t)
	})

	t.Run("dry run does not write", func(t *testing.T) {
		t.Parallel()

		booker := new(MockBooker)
		p := NewPlanner(discard(), nil, booker, true, time.UTC)
		ev, err := p.Book(context.Background(), plan, "Planning", req)
		require.NoError(t, err)
		assert.Equal(t, at(10, 45), ev.EndTime)
		booker.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
	})

	t.Run("booker failure", func(t *testing.T) {
		t.Parallel()

		booker := new(MockBooker)
		booker.On("CreateEvent", mock.Anything, mock.Anything).Return(errors.New("forbidden"))
		p := NewPlanner(discard(), nil, booker, false, time.UTC)
		_, err := p.Book(context.Background(), plan, "Planning", req)
		require.Error(t, err)
	})

	t.Run("no window", func(t *testing.T) {
		t.Parallel()

		p := NewPlanner(discard(), nil, new(MockBooker), false, time.UTC)
		_, err := p.Book(context.Background(), &Plan{Day: day}, "Planning", req)
		require.ErrorIs(t, err, ErrNoWindow)
	})

	t.Run("no booker", func(t *testing.T) {
		t.Parallel()

		p := NewPlanner(discard(), nil, nil, false, time.UTC)
		_, err := p.Book(context.Background(), plan, "Planning", req)
		require.ErrorIs(t, err, ErrNoBooker)
	})
}

func TestProjectDay(t *testing.T) {
	t.Parallel()

	events := []*models.Event{
		busy("Seconds", at(9, 0).Add(20*time.Second), at(9, 10).Add(5*time.Second), "A@example.com"),
		busy("Yesterday", day.Add(-2*time.Hour), day.Add(-time.Hour), "a@example.com"),
		busy("Tomorrow", day.AddDate(0, 0, 1), day.AddDate(0, 0, 1).Add(time.Hour), "a@example.com"),
		busy("Empty", at(10, 0), at(10, 0), "a@example.com"),
		{Title: "Holiday", StartTime: day, EndTime: day.AddDate(0, 0, 1), AllDay: true},
		nil,
	}

	projected := ProjectDay(events, day)
	require.Len(t, projected, 1)
	assert.Equal(t, meeting.FromStartEnd(meeting.MinutesOf(9, 0), meeting.MinutesOf(9, 11), false), projected[0].When())
	assert.Equal(t, []string{"a@example.com"}, projected[0].Attendees())
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[
		{"title": "Standup", "start_time": "2026-10-19T09:00:00Z", "end_time": "2026-10-19T09:15:00Z", "attendees": ["alice@example.com"]}
	]`), 0o600))

	icsPath := filepath.Join(dir, "events.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte("BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:1\r\n"+
		"DTSTAMP:20261018T080000Z\r\n"+
		"DTSTART:20261019T100000Z\r\n"+
		"DTEND:20261019T110000Z\r\n"+
		"SUMMARY:Review\r\n"+
		"ATTENDEE:mailto:bob@example.com\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n"), 0o600))

	txtPath := filepath.Join(dir, "events.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("nope"), 0o600))

	ctx := context.Background()

	events, err := NewFileSource(jsonPath).EventsBetween(ctx, day, day.AddDate(0, 0, 1), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, "file-events.json", events[0].Source)

	events, err = NewFileSource(icsPath).EventsBetween(ctx, day, day.AddDate(0, 0, 1), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"bob@example.com"}, events[0].Attendees)

	_, err = NewFileSource(txtPath).EventsBetween(ctx, day, day.AddDate(0, 0, 1), nil)
	require.Error(t, err)

	_, err = NewFileSource(filepath.Join(dir, "missing.json")).EventsBetween(ctx, day, day.AddDate(0, 0, 1), nil)
	require.Error(t, err)
}
