package reminder

// State is where an entry sits in the reminder lifecycle. Taken and Missed
// are only reported as outcomes; the entry returns to Idle afterwards.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateSnoozed State = "snoozed"
	StateTaken   State = "taken"
	StateMissed  State = "missed"
)
