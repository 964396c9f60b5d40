// Package fsm defines the voice chat session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateFinalizing State = "finalizing"
	StateSubmitting State = "submitting"
	StateSpeaking   State = "speaking"
)

const (
	EventStart    Event = "start"
	EventFinalize Event = "finalize"
	EventSubmit   Event = "submit"
	EventDiscard  Event = "discard"
	EventReply    Event = "reply"
	EventResume   Event = "resume"
	EventFinish   Event = "finish"
	EventStop     Event = "stop"
	EventFail     Event = "fail"
)

// Transition returns the state reached by applying event to current.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateListening, StateFinalizing, StateSubmitting, StateSpeaking:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	if event == EventStop || event == EventFail {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		if event == EventStart {
			return StateListening, nil
		}
	case StateListening:
		if event == EventFinalize {
			return StateFinalizing, nil
		}
	case StateFinalizing:
		switch event {
		case EventSubmit:
			return StateSubmitting, nil
		case EventDiscard:
			return StateIdle, nil
		}
	case StateSubmitting:
		if event == EventReply {
			return StateSpeaking, nil
		}
	case StateSpeaking:
		switch event {
		case EventResume:
			return StateListening, nil
		case EventFinish:
			return StateIdle, nil
		}
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
