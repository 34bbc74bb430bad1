package scheduling

// transitions lists the statuses each status may move to. Terminal statuses
// have no entry.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted, StatusNoShow},
}

// CanTransition reports whether from -> to is a legal ledger move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
