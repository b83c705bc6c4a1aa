package domain

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	StatusPending    IntentStatus = "PENDING"
	StatusProcessing IntentStatus = "PROCESSING"
	StatusCompleted  IntentStatus = "COMPLETED"
	StatusFailed     IntentStatus = "FAILED"
	StatusCancelled  IntentStatus = "CANCELLED"
	StatusRefunded   IntentStatus = "REFUNDED"
)

// IsTerminal reports whether no automatic transition leaves s.
// COMPLETED is terminal but may still move once to REFUNDED.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> target is an allowed edge.
// COMPLETED -> COMPLETED is allowed and treated as a no-op by callers.
func (s IntentStatus) CanTransitionTo(target IntentStatus) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCompleted ||
			target == StatusFailed || target == StatusCancelled
	case StatusProcessing:
		return target == StatusCompleted || target == StatusFailed || target == StatusCancelled
	case StatusCompleted:
		return target == StatusRefunded || target == StatusCompleted
	}
	return false
}

// Sources lists the states from which target can be reached, for conditional updates.
func Sources(target IntentStatus) []IntentStatus {
	var out []IntentStatus
	for _, s := range []IntentStatus{StatusPending, StatusProcessing, StatusCompleted} {
		if s != target && s.CanTransitionTo(target) {
			out = append(out, s)
		}
	}
	return out
}
