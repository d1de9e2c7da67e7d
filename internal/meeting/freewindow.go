package meeting

import (
	"slices"
)

// FreeWindows returns the parts of the day not covered by any busy range and at
// least minDuration minutes long, in chronological order. Busy ranges may overlap
// or nest and need not be sorted.
func FreeWindows(busy []TimeRange, minDuration int) []TimeRange {
	sorted := slices.Clone(busy)
	slices.SortStableFunc(sorted, CompareByStart)
	return gaps(WholeDay, sorted, minDuration)
}

// gaps sweeps sorted busy ranges across bounds and collects the uncovered stretches.
func gaps(bounds TimeRange, sorted []TimeRange, minDuration int) []TimeRange {
	free := make([]TimeRange, 0, len(sorted)+1)
	keep := func(start, end int) {
		if end > start && end-start >= minDuration {
			free = append(free, FromStartEnd(start, end, false))
		}
	}

	cursor := bounds.start
	for _, b := range sorted {
		// Already swallowed by an earlier range.
		if b.end <= cursor {
			continue
		}
		if cursor < b.start {
			keep(cursor, min(b.start, bounds.end))
		}
		cursor = max(cursor, b.end)
		if cursor >= bounds.end {
			return free
		}
	}
	keep(cursor, bounds.end)
	return free
}
