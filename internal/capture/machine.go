package capture

import (
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

// Phase is the capture machine's position within one listening cycle.
type Phase int

const (
	PhaseListening Phase = iota + 1
	PhaseRestarting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseRestarting:
		return "restarting"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// EventKind names one input to the capture machine.
type EventKind int

const (
	TranscriptUpdated EventKind = iota + 1
	SilenceDetected
	RecognitionFailed
	RecognitionEnded
	RestartDue
	StopRequested
)

// Event is one input to the capture machine.
type Event struct {
	Kind  EventKind
	Text  string
	Final bool
	Err   error
}

// EffectKind names one side effect the driver must execute.
type EffectKind int

const (
	ResetSilence EffectKind = iota + 1
	CancelTimers
	StopRecognizer
	ScheduleRestart
	StartRecognizer
	EmitTranscript
	Finalize
	Fail
)

// Effect is one side effect requested by the capture machine, executed in order.
type Effect struct {
	Kind EffectKind
	Text string
	Err  error
}

// Machine owns the utterance of one capture cycle and decides how each event
// changes it. It holds no timers or goroutines.
type Machine struct {
	phase     Phase
	utterance transcript.Utterance
	restarted bool
}

// NewMachine returns a machine in the listening phase with an empty utterance.
func NewMachine() *Machine {
	return &Machine{phase: PhaseListening}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Text returns the utterance accumulated so far.
func (m *Machine) Text() string {
	return m.utterance.Text()
}

// Apply consumes one event and returns the effects to run. Events after the
// cycle is done are ignored.
func (m *Machine) Apply(ev Event) []Effect {
	if m.phase == PhaseDone {
		return nil
	}

	switch ev.Kind {
	case TranscriptUpdated:
		if m.phase != PhaseListening {
			return nil
		}
		before := m.utterance.Text()
		m.utterance.Apply(ev.Text, ev.Final)
		after := m.utterance.Text()
		if after == before {
			return nil
		}
		return []Effect{{Kind: ResetSilence}, {Kind: EmitTranscript, Text: after}}

	case SilenceDetected:
		if m.phase != PhaseListening || m.utterance.Text() == "" {
			return nil
		}
		return m.finalize()

	case StopRequested:
		return m.finalize()

	case RecognitionEnded:
		// The old run closing during a restart is expected.
		if m.phase != PhaseListening {
			return nil
		}
		return m.finalize()

	case RecognitionFailed:
		if m.phase == PhaseListening && !m.restarted && speech.IsTransient(ev.Err) {
			m.restarted = true
			m.phase = PhaseRestarting
			return []Effect{{Kind: CancelTimers}, {Kind: StopRecognizer}, {Kind: ScheduleRestart}}
		}
		return m.fail(ev.Err)

	case RestartDue:
		if m.phase != PhaseRestarting {
			return nil
		}
		m.phase = PhaseListening
		effects := []Effect{{Kind: StartRecognizer}}
		if m.utterance.Text() != "" {
			effects = append(effects, Effect{Kind: ResetSilence})
		}
		return effects
	}

	return nil
}

func (m *Machine) finalize() []Effect {
	m.phase = PhaseDone
	text := m.utterance.Freeze()
	return []Effect{{Kind: CancelTimers}, {Kind: StopRecognizer}, {Kind: Finalize, Text: text}}
}

func (m *Machine) fail(err error) []Effect {
	m.phase = PhaseDone
	m.utterance.Freeze()
	return []Effect{{Kind: CancelTimers}, {Kind: StopRecognizer}, {Kind: Fail, Err: err}}
}
