// Package ics converts between iCalendar data and the internal event model.
package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"freeslot/internal/models"
)

const productID = "-//freeslot//EN"

// Decode reads every calendar in r and returns its events.
// Floating times are interpreted in loc.
func Decode(r io.Reader, loc *time.Location, source string) ([]*models.Event, error) {
	dec := ical.NewDecoder(r)
	var events []*models.Event
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode iCalendar data: %w", err)
		}
		evs, err := FromCalendar(cal, loc, source)
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
}

// FromCalendar converts the VEVENTs of cal.
func FromCalendar(cal *ical.Calendar, loc *time.Location, source string) ([]*models.Event, error) {
	var events []*models.Event
	for _, ve := range cal.Events() {
		ev, err := fromVEvent(ve, loc, source)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

func fromVEvent(ve ical.Event, loc *time.Location, source string) (*models.Event, error) {
	// Transparent events are informational and never block time.
	if transp := ve.Props.Get(ical.PropTransparency); transp != nil && strings.EqualFold(transp.Value, "TRANSPARENT") {
		return nil, nil
	}

	uid, _ := ve.Props.Text(ical.PropUID)
	start, err := ve.DateTimeStart(loc)
	if err != nil {
		return nil, fmt.Errorf("event %q has no usable start: %w", uid, err)
	}
	end, err := ve.DateTimeEnd(loc)
	if err != nil || end.IsZero() {
		end = start
	}

	ev := &models.Event{
		ID:        uid,
		UID:       uid,
		StartTime: start,
		EndTime:   end,
		Source:    source,
	}
	if dtstart := ve.Props.Get(ical.PropDateTimeStart); dtstart != nil && dtstart.ValueType() == ical.ValueDate {
		ev.AllDay = true
	}
	ev.Title, _ = ve.Props.Text(ical.PropSummary)
	ev.Description, _ = ve.Props.Text(ical.PropDescription)
	ev.Location, _ = ve.Props.Text(ical.PropLocation)
	if org := ve.Props.Get(ical.PropOrganizer); org != nil {
		ev.Organizer = Address(org.Value)
	}

	seen := make(map[string]bool)
	for _, p := range ve.Props.Values(ical.PropAttendee) {
		if strings.EqualFold(p.Params.Get(ical.ParamParticipationStatus), "DECLINED") {
			continue
		}
		addr := Address(p.Value)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			ev.Attendees = append(ev.Attendees, addr)
		}
	}
	if ev.Organizer != "" && !seen[ev.Organizer] {
		ev.Attendees = append(ev.Attendees, ev.Organizer)
	}
	return ev, nil
}

// Address normalises a calendar user address to a bare lower-case email.
func Address(value string) string {
	v := strings.TrimSpace(value)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return strings.ToLower(v)
}

// ToVEvent converts an internal Event model to an ical.Component (VEvent).
func ToVEvent(event *models.Event) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.UID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime)

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.SetText(fmt.Sprintf("mailto:%s", event.Organizer))
		ve.Props.Add(p)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText(fmt.Sprintf("mailto:%s", attendee))
		ve.Props.Add(p)
	}
	return ve
}

// NewCalendar wraps events in a VCALENDAR ready for encoding.
func NewCalendar(events ...*models.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	for _, ev := range events {
		cal.Children = append(cal.Children, ToVEvent(ev))
	}
	return cal
}

// Encode writes events as a single calendar.
func Encode(w io.Writer, events ...*models.Event) error {
	if err := ical.NewEncoder(w).Encode(NewCalendar(events...)); err != nil {
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return nil
}
