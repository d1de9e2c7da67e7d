package meeting

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeDuration = errors.New("meeting duration must not be negative")
	ErrAttendeeConflict = errors.New("attendee is both mandatory and optional")
)

// Request asks for a meeting of a fixed length between mandatory attendees,
// inviting optional attendees where their calendars allow it.
type Request struct {
	attendees         AttendeeSet
	optionalAttendees AttendeeSet
	duration          int
}

// NewRequest returns a request for duration minutes with the given mandatory attendees.
func NewRequest(attendees []string, duration int) *Request {
	return &Request{
		attendees:         NewAttendeeSet(attendees...),
		optionalAttendees: NewAttendeeSet(),
		duration:          duration,
	}
}

// AddOptionalAttendee invites name on a best-effort basis.
func (r *Request) AddOptionalAttendee(name string) {
	r.optionalAttendees.Add(name)
}

// Attendees returns the mandatory attendees.
func (r *Request) Attendees() AttendeeSet { return r.attendees }

// OptionalAttendees returns the optional attendees.
func (r *Request) OptionalAttendees() AttendeeSet { return r.optionalAttendees }

// Duration returns the meeting length in minutes.
func (r *Request) Duration() int { return r.duration }

// Validate reports requests the resolver gives no meaning to.
func (r *Request) Validate() error {
	if r.duration < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeDuration, r.duration)
	}
	for _, name := range r.optionalAttendees.Sorted() {
		if r.attendees.Has(name) {
			return fmt.Errorf("%w: %s", ErrAttendeeConflict, name)
		}
	}
	return nil
}
