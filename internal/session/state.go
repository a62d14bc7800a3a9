package session

// State is the lifecycle state of a measurement session.
type State int32

const (
	Idle State = iota
	Connecting
	Running
	Cancelling
	Completed
	Cancelled
	Failed
)

var stateNames = map[State]string{
	Idle:       "idle",
	Connecting: "connecting",
	Running:    "running",
	Cancelling: "cancelling",
	Completed:  "completed",
	Cancelled:  "cancelled",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case Completed, Cancelled, Failed:
		return true
	default:
		return false
	}
}
