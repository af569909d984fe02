package mcp

// State is the connection state of a managed server.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	default:
		return "disconnected"
	}
}

// Status is a server's state plus the reason when errored.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func Connected() Status    { return Status{State: StateConnected} }
func Disconnected() Status { return Status{State: StateDisconnected} }

func Errored(reason string) Status {
	return Status{State: StateErrored, Reason: reason}
}

func (s Status) String() string {
	if s.State == StateErrored && s.Reason != "" {
		return s.State.String() + ": " + s.Reason
	}
	return s.State.String()
}
