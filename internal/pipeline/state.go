package pipeline

// State is the lifecycle position of a Pipeline run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDrainingParse
	StateDrainingMatch
	StateDrainingStore
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDrainingParse:
		return "draining(parse)"
	case StateDrainingMatch:
		return "draining(match)"
	case StateDrainingStore:
		return "draining(store)"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s State) active() bool {
	return s != StateIdle && s != StateCompleted
}
