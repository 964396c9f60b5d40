package transcript

import "sync"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in the visible conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Log is the append-only conversation transcript of one UI session.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds turns in order.
func (l *Log) Append(turns ...Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turns...)
}

// Turns returns a snapshot copy of the transcript.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Turn(nil), l.turns...)
}

// Len returns the number of recorded turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Reset clears the transcript.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
}
