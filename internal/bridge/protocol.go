// Package bridge runs one voice chat session per browser websocket, using the
// browser's speech engines as the session's recognizer and synthesizer.
package bridge

// Browser to server message types.
const (
	TypeHello  = "hello"
	TypeListen = "listen"
	TypeResult = "result"
	TypeError  = "error"
	TypeEnd    = "end"
	TypeSpoken = "spoken"
	TypeStop   = "stop"
	TypeReset  = "reset"
)

// Server to browser message types.
const (
	TypeStart      = "start"
	TypeAbort      = "abort"
	TypeSpeak      = "speak"
	TypeState      = "state"
	TypeTranscript = "transcript"
	TypeTurn       = "turn"
	TypeHush       = "hush"
	TypeCleared    = "cleared"
)

// Message is one JSON frame in either direction. Run tags recognition runs so
// late events from an aborted run are ignored; ID pairs speak with spoken.
type Message struct {
	Type        string `json:"type"`
	Run         int    `json:"run,omitempty"`
	ID          int    `json:"id,omitempty"`
	Text        string `json:"text,omitempty"`
	Final       bool   `json:"final,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	Role        string `json:"role,omitempty"`
	State       string `json:"state,omitempty"`
	Recognition bool   `json:"recognition,omitempty"`
	Synthesis   bool   `json:"synthesis,omitempty"`
}
