// Package speech defines the recognition and synthesis capabilities consumed by voice sessions.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported indicates the platform offers no such capability.
var ErrUnsupported = errors.New("speech capability is not supported")

type EventKind int

const (
	EventResult EventKind = iota + 1
	EventError
)

// Event is one incremental notification from a running recognizer.
type Event struct {
	Kind  EventKind
	Text  string
	Final bool
	Err   error
}

// Result builds a transcript event.
func Result(text string, final bool) Event {
	return Event{Kind: EventResult, Text: text, Final: final}
}

// Failure builds an error event.
func Failure(err error) Event {
	return Event{Kind: EventError, Err: err}
}

// Recognizer is a continuous, interim-capable speech recognition engine.
//
// Start begins one recognition run and returns its event channel. The channel
// is closed when the run ends, whether through Stop or by the engine itself.
type Recognizer interface {
	Start(context.Context) (<-chan Event, error)
	Stop() error
}

// Synthesizer reads text aloud. Speak returns once playback has finished.
type Synthesizer interface {
	Speak(context.Context, string) error
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(context.Context, string) error

func (f SynthesizerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Unsupported is the Synthesizer used when speech output is disabled.
type Unsupported struct{}

func (Unsupported) Speak(context.Context, string) error {
	return ErrUnsupported
}

// CodeNetwork is the recognition error code for connectivity loss.
const CodeNetwork = "network"

// RecognitionError is a failure reported by a recognition engine.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("speech recognition error: %s", e.Code)
	}
	return fmt.Sprintf("speech recognition error: %s: %s", e.Code, e.Message)
}

// Transient reports whether one automatic restart may recover the engine.
func (e *RecognitionError) Transient() bool {
	return e.Code == CodeNetwork
}

// IsTransient reports whether err carries a transient RecognitionError.
func IsTransient(err error) bool {
	var recErr *RecognitionError
	return errors.As(err, &recErr) && recErr.Transient()
}
