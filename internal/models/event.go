package models

import "time"

// Event represents a standard calendar event.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string    `json:"id,omitempty"`          // Identifier in the source calendar
	Title       string    `json:"title"`                 // Summary or title of the event
	Description string    `json:"description,omitempty"` // Detailed description of the event
	StartTime   time.Time `json:"start_time"`            // Start time of the event
	EndTime     time.Time `json:"end_time"`              // End time of the event
	AllDay      bool      `json:"all_day,omitempty"`     // Date-only events do not block time
	Location    string    `json:"location,omitempty"`    // Location of the event
	Organizer   string    `json:"organizer,omitempty"`   // Organizer's email
	Attendees   []string  `json:"attendees"`             // Emails of the people the event blocks
	Source      string    `json:"source,omitempty"`      // The source of the event (e.g., "google-primary")
	UID         string    `json:"uid,omitempty"`         // The iCalendar UID
}

// Blocks reports whether the event occupies the attendees' time at all.
func (e *Event) Blocks() bool {
	return !e.AllDay && e.EndTime.After(e.StartTime)
}
