package ipc

// Commands understood by a running listen session.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandQuit   = "quit"
	CommandReset  = "reset"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Turns   int    `json:"turns,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
