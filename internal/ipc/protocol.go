package ipc

// Commands understood by the control socket. Each connection carries one
// JSON request line and one JSON response line.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
)

const stopMessage = "stopping after the current cycle"

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool    `json:"ok"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Status is the agent summary reported by the status command.
type Status struct {
	PID         int              `json:"pid"`
	Mode        string           `json:"mode"`
	ModeSince   string           `json:"mode_since,omitempty"`
	StartedAt   string           `json:"started_at"`
	Turns       int64            `json:"turns"`
	Outcomes    map[string]int64 `json:"outcomes,omitempty"`
	LastOutcome string           `json:"last_outcome,omitempty"`
	LastTurnAt  string           `json:"last_turn_at,omitempty"`
	Stopping    bool             `json:"stopping,omitempty"`
}
