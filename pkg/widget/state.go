package widget

// Phase is where the conversation stands between turns.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAwaitingPassword
	PhaseAuthenticated
	PhaseLoggingOut
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingPassword:
		return "awaiting_password"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseLoggingOut:
		return "logging_out"
	default:
		return "anonymous"
	}
}

// State is a snapshot of the flow state. InFlight is orthogonal to Phase:
// any phase can have a turn in flight, and LoggingOut always does.
type State struct {
	Phase    Phase
	InFlight bool
}

func (s State) Authenticated() bool { return s.Phase == PhaseAuthenticated }

func (s State) AwaitingPassword() bool { return s.Phase == PhaseAwaitingPassword }
