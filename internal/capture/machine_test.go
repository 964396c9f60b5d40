package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxchat/internal/speech"
)

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, 0, len(effects))
	for _, effect := range effects {
		out = append(out, effect.Kind)
	}
	return out
}

func TestMachineTranscriptUpdatesResetSilence(t *testing.T) {
	m := NewMachine()

	effects := m.Apply(Event{Kind: TranscriptUpdated, Text: "hello", Final: false})
	require.Equal(t, []EffectKind{ResetSilence, EmitTranscript}, kinds(effects))
	require.Equal(t, "hello", effects[1].Text)

	require.Empty(t, m.Apply(Event{Kind: TranscriptUpdated, Text: "hello", Final: false}))
	require.Empty(t, m.Apply(Event{Kind: TranscriptUpdated, Text: "   "}))
}

func TestMachineAppliesEventsInOrder(t *testing.T) {
	m := NewMachine()
	for _, ev := range []Event{
		{Kind: TranscriptUpdated, Text: "turn on"},
		{Kind: TranscriptUpdated, Text: "turn on the", Final: false},
		{Kind: TranscriptUpdated, Text: "turn on the lights", Final: true},
		{Kind: TranscriptUpdated, Text: "please", Final: true},
	} {
		m.Apply(ev)
	}
	require.Equal(t, "turn on the lights please", m.Text())
}

func TestMachineSilenceIgnoredWithoutSpeech(t *testing.T) {
	m := NewMachine()
	require.Empty(t, m.Apply(Event{Kind: SilenceDetected}))
	require.Equal(t, PhaseListening, m.Phase())
}

func TestMachineSilenceFinalizes(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: TranscriptUpdated, Text: "hello", Final: true})

	effects := m.Apply(Event{Kind: SilenceDetected})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, Finalize}, kinds(effects))
	require.Equal(t, "hello", effects[2].Text)
	require.Equal(t, PhaseDone, m.Phase())

	require.Empty(t, m.Apply(Event{Kind: TranscriptUpdated, Text: "late"}))
	require.Equal(t, "hello", m.Text())
}

func TestMachineStopFinalizesEmpty(t *testing.T) {
	m := NewMachine()
	effects := m.Apply(Event{Kind: StopRequested})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, Finalize}, kinds(effects))
	require.Empty(t, effects[2].Text)
}

func TestMachineSingleRestart(t *testing.T) {
	m := NewMachine()
	network := &speech.RecognitionError{Code: speech.CodeNetwork}

	effects := m.Apply(Event{Kind: RecognitionFailed, Err: network})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, ScheduleRestart}, kinds(effects))
	require.Equal(t, PhaseRestarting, m.Phase())

	require.Empty(t, m.Apply(Event{Kind: RecognitionEnded}))
	require.Empty(t, m.Apply(Event{Kind: SilenceDetected}))

	effects = m.Apply(Event{Kind: RestartDue})
	require.Equal(t, []EffectKind{StartRecognizer}, kinds(effects))
	require.Equal(t, PhaseListening, m.Phase())

	effects = m.Apply(Event{Kind: RecognitionFailed, Err: network})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, Fail}, kinds(effects))
	require.ErrorIs(t, effects[2].Err, network)
	require.Equal(t, PhaseDone, m.Phase())
}

func TestMachineRestartRearmsSilenceWhenSpeechHeard(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: TranscriptUpdated, Text: "hi", Final: true})
	m.Apply(Event{Kind: RecognitionFailed, Err: &speech.RecognitionError{Code: speech.CodeNetwork}})

	effects := m.Apply(Event{Kind: RestartDue})
	require.Equal(t, []EffectKind{StartRecognizer, ResetSilence}, kinds(effects))
}

func TestMachineFatalErrorFails(t *testing.T) {
	m := NewMachine()
	fatal := errors.New("audio-capture")

	effects := m.Apply(Event{Kind: RecognitionFailed, Err: fatal})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, Fail}, kinds(effects))
	require.ErrorIs(t, effects[2].Err, fatal)
}

func TestMachineStopDuringRestartFinalizes(t *testing.T) {
	m := NewMachine()
	m.Apply(Event{Kind: TranscriptUpdated, Text: "almost", Final: true})
	m.Apply(Event{Kind: RecognitionFailed, Err: &speech.RecognitionError{Code: speech.CodeNetwork}})

	effects := m.Apply(Event{Kind: StopRequested})
	require.Equal(t, []EffectKind{CancelTimers, StopRecognizer, Finalize}, kinds(effects))
	require.Equal(t, "almost", effects[2].Text)
	require.Empty(t, m.Apply(Event{Kind: RestartDue}))
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "listening", PhaseListening.String())
	require.Equal(t, "restarting", PhaseRestarting.String())
	require.Equal(t, "done", PhaseDone.String())
	require.Equal(t, "unknown", Phase(0).String())
}
