package orchestration

// State is a step of the session state machine.
type State int

const (
	StateWaitingForInput State = iota
	StateAnalyzing
	StateDelegating
	StateResponding
	StateObserving
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateWaitingForInput:
		return "waiting_for_input"
	case StateAnalyzing:
		return "analyzing"
	case StateDelegating:
		return "delegating"
	case StateResponding:
		return "responding"
	case StateObserving:
		return "observing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// StateChange is sent to listeners each time the loop enters a state.
type StateChange struct {
	State State
	Step  int
	Turn  int
}

// StateListener receives state changes. It runs on the loop's goroutine and
// must not block.
type StateListener func(change StateChange)
