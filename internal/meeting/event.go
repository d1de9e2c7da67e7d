package meeting

import (
	"slices"
)

// AttendeeSet is an unordered set of attendee names.
type AttendeeSet map[string]struct{}

// NewAttendeeSet builds a set from names, dropping duplicates.
func NewAttendeeSet(names ...string) AttendeeSet {
	s := make(AttendeeSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts name into the set.
func (s AttendeeSet) Add(name string) { s[name] = struct{}{} }

// Has reports whether name is in the set.
func (s AttendeeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Intersects reports whether the sets share at least one name.
func (s AttendeeSet) Intersects(other AttendeeSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for n := range small {
		if large.Has(n) {
			return true
		}
	}
	return false
}

// Sorted returns the names in lexical order.
func (s AttendeeSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Event is a named busy interval and the people it blocks.
type Event struct {
	name      string
	when      TimeRange
	attendees AttendeeSet
}

// NewEvent returns an event. The attendee list is copied into a set.
func NewEvent(name string, when TimeRange, attendees ...string) Event {
	return Event{name: name, when: when, attendees: NewAttendeeSet(attendees...)}
}

// Name returns the event title.
func (e Event) Name() string { return e.name }

// When returns the busy interval.
func (e Event) When() TimeRange { return e.when }

// Attendees returns the attendee names in lexical order.
func (e Event) Attendees() []string { return e.attendees.Sorted() }

// HasAttendee reports whether name attends the event.
func (e Event) HasAttendee(name string) bool { return e.attendees.Has(name) }

// Involves reports whether any of people attends the event.
func (e Event) Involves(people AttendeeSet) bool { return e.attendees.Intersects(people) }

func compareEventsByStart(a, b Event) int {
	return CompareByStart(a.when, b.when)
}
