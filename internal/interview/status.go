package interview

// Interview statuses.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusAbandoned  = "abandoned"
)

// ValidTransitions maps each non-terminal status to its valid next statuses.
// Terminal statuses have no entry.
var ValidTransitions = map[string][]string{
	StatusNotStarted: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusAbandoned, StatusCancelled},
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusAbandoned:
		return true
	}
	return false
}

// CanTransition reports whether from → to is an edge of the status graph.
func CanTransition(from, to string) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
