package meeting

import (
	"cmp"
	"fmt"
)

const (
	// StartOfDay is the first minute of the day.
	StartOfDay = 0
	// EndOfDay is the last minute of the day. Use it with inclusiveOfEnd to reach midnight.
	EndOfDay = 24*60 - 1
)

// WholeDay spans every minute of the day.
var WholeDay = FromStartEnd(StartOfDay, EndOfDay, true)

// TimeRange is a half-open interval [start, end) of minutes within a day.
// The zero value is an empty range at midnight.
type TimeRange struct {
	start int
	end   int
}

// FromStartDuration returns the range that starts at start and lasts duration minutes.
func FromStartDuration(start, duration int) TimeRange {
	return newTimeRange(start, start+duration)
}

// FromStartEnd returns the range between start and end. When inclusiveOfEnd is set
// the minute at end is part of the range.
func FromStartEnd(start, end int, inclusiveOfEnd bool) TimeRange {
	if inclusiveOfEnd {
		end++
	}
	return newTimeRange(start, end)
}

func newTimeRange(start, end int) TimeRange {
	if start < 0 || end < start {
		panic(fmt.Sprintf("meeting: invalid time range [%d, %d)", start, end))
	}
	return TimeRange{start: start, end: end}
}

// MinutesOf converts a wall clock time to minutes since midnight.
func MinutesOf(hour, minute int) int {
	return hour*60 + minute
}

// Start returns the first minute of the range.
func (r TimeRange) Start() int { return r.start }

// End returns the first minute after the range.
func (r TimeRange) End() int { return r.end }

// Duration returns the length of the range in minutes.
func (r TimeRange) Duration() int { return r.end - r.start }

// Contains reports whether point falls inside the range.
func (r TimeRange) Contains(point int) bool {
	return point >= r.start && point < r.end
}

// ContainsRange reports whether other lies entirely inside r.
func (r TimeRange) ContainsRange(other TimeRange) bool {
	if other.Duration() == 0 {
		return other.start >= r.start && other.start <= r.end
	}
	return other.start >= r.start && other.end <= r.end
}

// Overlaps reports whether the two ranges share at least one minute.
// Back-to-back ranges do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Contains(other.start) || other.Contains(r.start)
}

// String formats the range as [HH:MM, HH:MM).
func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", Clock(r.start), Clock(r.end))
}

// Clock formats a minute of the day as HH:MM. Midnight at the end of the day is 24:00.
func Clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// CompareByStart orders ranges by ascending start, then ascending end.
func CompareByStart(a, b TimeRange) int {
	if c := cmp.Compare(a.start, b.start); c != 0 {
		return c
	}
	return cmp.Compare(a.end, b.end)
}
