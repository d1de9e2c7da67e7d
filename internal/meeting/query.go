package meeting

import (
	"slices"
)

// Query returns every window of the day in which the requested meeting can be held.
//
// Windows that suit mandatory and optional attendees alike win. Failing that, the
// windows that suit all mandatory attendees are narrowed to those freeing the most
// optional attendees. When mandatory attendees have no room at all, the day is searched
// for the windows freeing the most optional attendees. An empty result means no
// meeting is possible.
func Query(events []Event, req *Request) []TimeRange {
	mandatory, optional := req.attendees, req.optionalAttendees
	if len(mandatory) == 0 && len(optional) == 0 {
		return []TimeRange{WholeDay}
	}

	var (
		allBusy       []TimeRange
		mandatoryBusy []TimeRange
		optionalOnly  []Event
	)
	for _, ev := range sortedEvents(events) {
		involvesMandatory := ev.Involves(mandatory)
		involvesOptional := ev.Involves(optional)
		if !involvesMandatory && !involvesOptional {
			continue
		}
		allBusy = append(allBusy, ev.when)
		if involvesMandatory {
			mandatoryBusy = append(mandatoryBusy, ev.when)
		}
		if involvesOptional {
			optionalOnly = append(optionalOnly, ev)
		}
	}

	allFree := FreeWindows(allBusy, req.duration)
	if len(allFree) > 0 {
		return allFree
	}

	mandatoryFree := FreeWindows(mandatoryBusy, req.duration)
	if len(mandatoryFree) > 0 {
		if best := mostOptionalAttendees(mandatoryFree, optionalOnly, req); len(best) > 0 {
			return best
		}
		return mandatoryFree
	}

	if len(optional) > 0 {
		return mostOptionalAttendees([]TimeRange{WholeDay}, optionalOnly, req)
	}
	return allFree
}

func sortedEvents(events []Event) []Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, compareEventsByStart)
	return sorted
}

// mostOptionalAttendees splits each container at the edges of optional events and
// keeps the pieces that free the largest number of optional attendees. Ties keep
// container order, then chronological order within a container.
func mostOptionalAttendees(containers []TimeRange, optionalEvents []Event, req *Request) []TimeRange {
	best := make([]TimeRange, 0)
	bestScore := -1
	for _, c := range containers {
		for _, candidate := range subWindows(c, optionalEvents, req.duration) {
			score := availableOptional(candidate, optionalEvents, req.optionalAttendees)
			if score < bestScore {
				continue
			}
			if score > bestScore {
				best = best[:0]
				bestScore = score
			}
			best = append(best, candidate)
		}
	}
	return best
}

// subWindows returns the stretches of container left uncovered by optional events
// that start or end inside it. Events covering the whole container do not cut it;
// they only lower the score of the container.
func subWindows(container TimeRange, optionalEvents []Event, minDuration int) []TimeRange {
	var cuts []TimeRange
	for _, ev := range optionalEvents {
		w := ev.when
		if !w.Overlaps(container) || w.ContainsRange(container) {
			continue
		}
		cuts = append(cuts, w)
	}
	return gaps(container, cuts, minDuration)
}

// availableOptional counts the optional attendees with no event overlapping window.
// This is the score maximised by mostOptionalAttendees: the number of optional
// attendees left free to join, not the number kept busy.
func availableOptional(window TimeRange, optionalEvents []Event, optional AttendeeSet) int {
	busy := make(AttendeeSet)
	for _, ev := range optionalEvents {
		if !ev.when.Overlaps(window) {
			continue
		}
		for name := range ev.attendees {
			if optional.Has(name) {
				busy.Add(name)
			}
		}
	}
	return len(optional) - len(busy)
}
