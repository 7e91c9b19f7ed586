package station

import "time"

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateError        State = "error"
)

type Command string

const (
	CommandInit  Command = "init"
	CommandStart Command = "start"
	CommandStop  Command = "stop"
	CommandReset Command = "reset"
)

type Status struct {
	State           State     `json:"state"`
	Mode            string    `json:"mode,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CellsCompleted  int       `json:"cells_completed"`
	CellsTotal      int       `json:"cells_total"`
	BatchResumed    bool      `json:"batch_resumed,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}
