package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxchat/internal/capture"
	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/ipc"
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

func TestRunHelloScenario(t *testing.T) {
	capturer := newFakeCapturer(captureResult{text: "hello"})
	sender := &fakeSender{reply: "Hi there!"}
	renderer := &fakeRenderer{}
	synth := &fakeSynth{}
	indicator := &fakeIndicator{}
	ctrl := NewController(nil, capturer, sender, NewPresenter(renderer, synth, nil), indicator, false)

	result := ctrl.Run(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, []transcript.Turn{
		{Role: transcript.RoleUser, Text: "hello"},
		{Role: transcript.RoleAssistant, Text: "Hi there!"},
	}, result.Turns)
	require.Equal(t, []string{"hello"}, sender.messages())
	require.Equal(t, []string{"Hi there!"}, synth.spoken())
	require.Equal(t, []fsm.State{
		fsm.StateListening,
		fsm.StateFinalizing,
		fsm.StateSubmitting,
		fsm.StateSpeaking,
		fsm.StateIdle,
	}, renderer.statesSeen())
	require.Equal(t, result.Turns, renderer.turnsSeen())
	require.Equal(t, int32(1), indicator.finalizedCues.Load())
	require.Equal(t, int32(1), indicator.replyCues.Load())
	require.Equal(t, int32(1), indicator.hides.Load())
}

func TestRunEmptyUtteranceSkipsNetwork(t *testing.T) {
	sender := &fakeSender{reply: "unused"}
	ctrl := NewController(nil, newFakeCapturer(captureResult{text: "   "}), sender, nil, nil, true)

	result := ctrl.Run(context.Background())
	require.ErrorIs(t, result.Err, ErrEmptyUtterance)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Zero(t, sender.calls.Load())
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	sender := &fakeSender{reply: "unused"}
	ctrl := NewController(nil, newFakeCapturer(), sender, nil, nil, false)
	setState(ctrl, fsm.StateFinalizing)

	_, err := ctrl.Submit(context.Background(), " \t\n")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, sender.calls.Load())
	require.Equal(t, fsm.StateFinalizing, ctrl.State())
}

func TestSubmitRequiresFinalizing(t *testing.T) {
	sender := &fakeSender{reply: "unused"}
	ctrl := NewController(nil, newFakeCapturer(), sender, nil, nil, false)

	_, err := ctrl.Submit(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid transition")
	require.Zero(t, sender.calls.Load())
}

func TestSubmitSingleInFlight(t *testing.T) {
	release := make(chan struct{})
	sender := &fakeSender{reply: "done", block: release}
	ctrl := NewController(nil, newFakeCapturer(), sender, nil, nil, false)
	setState(ctrl, fsm.StateFinalizing)

	type submitResult struct {
		turns []transcript.Turn
		err   error
	}
	first := make(chan submitResult, 1)
	go func() {
		turns, err := ctrl.Submit(context.Background(), "one")
		first <- submitResult{turns: turns, err: err}
	}()
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := ctrl.Submit(context.Background(), "two")
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(release)
	out := <-first
	require.NoError(t, out.err)
	require.Len(t, out.turns, 2)
	require.Equal(t, int32(1), sender.calls.Load())
	require.Equal(t, fsm.StateSpeaking, ctrl.State())
	require.Equal(t, out.turns, ctrl.Turns())
}

func TestRunSubmissionFailedReturnsIdleAndCanRestart(t *testing.T) {
	capturer := newFakeCapturer(captureResult{text: "hello"}, captureResult{text: "again"})
	sender := &fakeSender{err: errors.New("upstream returned 500")}
	renderer := &fakeRenderer{}
	indicator := &fakeIndicator{}
	ctrl := NewController(nil, capturer, sender, NewPresenter(renderer, nil, nil), indicator, false)

	result := ctrl.Run(context.Background())
	require.True(t, IsSubmissionFailed(result.Err))
	require.Equal(t, fsm.StateIdle, result.State)
	require.Empty(t, result.Turns)
	require.Equal(t, []string{"Request failed: upstream returned 500"}, renderer.errorsSeen())
	require.Equal(t, int32(1), indicator.errors.Load())

	sender.setReply("ok")
	result = ctrl.Run(context.Background())
	require.NoError(t, result.Err)
	require.Len(t, result.Turns, 2)
}

func TestSubmitEmptyReplyIsSubmissionFailed(t *testing.T) {
	ctrl := NewController(nil, newFakeCapturer(), &fakeSender{reply: "  "}, nil, nil, false)
	setState(ctrl, fsm.StateFinalizing)

	_, err := ctrl.Submit(context.Background(), "hello")
	var failed *SubmissionFailed
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "empty reply", failed.Message)
	require.Equal(t, fsm.StateIdle, ctrl.State())
}

func TestCloseDuringSubmissionDiscardsReply(t *testing.T) {
	release := make(chan struct{})
	capturer := newFakeCapturer(captureResult{text: "hello"})
	sender := &fakeSender{reply: "late reply", block: release}
	renderer := &fakeRenderer{}
	synth := &fakeSynth{}
	ctrl := NewController(nil, capturer, sender, NewPresenter(renderer, synth, nil), nil, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	statesBefore := len(renderer.statesSeen())
	ctrl.Close()
	cancel()

	require.Never(t, func() bool { return len(resultCh) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	close(release)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.False(t, sender.cancelled.Load())
	require.Equal(t, int32(1), sender.completed.Load())
	require.Empty(t, result.Turns)
	require.Empty(t, ctrl.Turns())
	require.Empty(t, synth.spoken())
	require.Empty(t, renderer.turnsSeen())
	require.Len(t, renderer.statesSeen(), statesBefore)
	require.True(t, capturer.closed.Load())

	_, err := ctrl.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, ErrClosed)
}

func TestPresenterDegradesWhenSynthesisUnavailable(t *testing.T) {
	renderer := &fakeRenderer{}
	presenter := NewPresenter(renderer, speech.Unsupported{}, nil)

	require.False(t, presenter.Present(context.Background(), "Hi there!"))
	require.Equal(t, []transcript.Turn{{Role: transcript.RoleAssistant, Text: "Hi there!"}}, renderer.turnsSeen())

	failing := NewPresenter(nil, speech.SynthesizerFunc(func(context.Context, string) error {
		return errors.New("audio device busy")
	}), nil)
	require.False(t, failing.Present(context.Background(), "hello"))

	require.False(t, NewPresenter(nil, nil, nil).Present(context.Background(), "hello"))
}

func TestRunAutoResumeUntilQuit(t *testing.T) {
	capturer := newFakeCapturer(captureResult{text: "hello"}, captureResult{text: "again"})
	sender := &fakeSender{reply: "sure"}
	ctrl := NewController(nil, capturer, sender, nil, nil, true)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	require.Eventually(t, func() bool { return sender.calls.Load() == 2 && capturer.waiting.Load() }, time.Second, 5*time.Millisecond)
	waitForState(t, ctrl, fsm.StateListening)

	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "quit"})
	require.True(t, resp.OK)

	result := <-resultCh
	require.True(t, result.Quit)
	require.NoError(t, result.Err)
	require.Equal(t, 3, result.Cycles)
	require.Len(t, result.Turns, 4)
	require.Equal(t, fsm.StateIdle, result.State)
}

func TestHandleStopFinalizesCurrentUtterance(t *testing.T) {
	capturer := newFakeCapturer()
	capturer.stopText = "stop here"
	sender := &fakeSender{reply: "ok"}
	ctrl := NewController(nil, capturer, sender, nil, nil, false)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	waitForState(t, ctrl, fsm.StateListening)
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK)
	require.Equal(t, "stop requested", resp.Message)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, []string{"stop here"}, sender.messages())
	require.Equal(t, int32(1), capturer.stops.Load())
}

func TestHandleStatusStopGuardAndUnknown(t *testing.T) {
	ctrl := NewController(nil, newFakeCapturer(), nil, nil, nil, false)

	status := ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Zero(t, status.Turns)

	stop := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, stop.OK)
	require.Contains(t, stop.Error, "cannot stop from state idle")

	reset := ctrl.Handle(context.Background(), ipc.Request{Command: "reset"})
	require.True(t, reset.OK)
	require.Equal(t, "transcript cleared", reset.Message)

	unknown := ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestQuitDuringSubmissionCancelsRequest(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	sender := &fakeSender{reply: "unused", block: release}
	ctrl := NewController(nil, newFakeCapturer(captureResult{text: "hello"}), sender, nil, nil, true)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "quit"}).OK)

	result := <-resultCh
	require.True(t, result.Quit)
	require.NoError(t, result.Err)
	require.True(t, sender.cancelled.Load())
	require.Empty(t, result.Turns)
	require.Equal(t, fsm.StateIdle, result.State)
}

func TestStopWhileSpeakingEndsInIdle(t *testing.T) {
	capturer := newFakeCapturer(captureResult{text: "hello"}, captureResult{text: "unused"})
	synth := &blockingSynth{started: make(chan struct{}, 1)}
	ctrl := NewController(nil, capturer, &fakeSender{reply: "a long answer"}, NewPresenter(nil, synth, nil), nil, true)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	<-synth.started
	require.Equal(t, fsm.StateSpeaking, ctrl.State())
	resp := ctrl.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateSpeaking), resp.State)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.False(t, result.Quit)
	require.Equal(t, 1, result.Cycles)
	require.Len(t, result.Turns, 2)
	require.Equal(t, fsm.StateIdle, result.State)
	require.True(t, synth.interrupted.Load())
}

func TestStopWhileSubmittingSkipsResume(t *testing.T) {
	release := make(chan struct{})
	capturer := newFakeCapturer(captureResult{text: "hello"}, captureResult{text: "unused"})
	sender := &fakeSender{reply: "ok", block: release}
	synth := &fakeSynth{}
	ctrl := NewController(nil, capturer, sender, NewPresenter(nil, synth, nil), nil, true)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(context.Background()) }()

	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, ctrl.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)
	close(release)

	result := <-resultCh
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.Cycles)
	require.Equal(t, []string{"ok"}, synth.spoken())
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, int32(1), sender.calls.Load())
}

func TestResetClearsTranscriptOnlyWhenIdle(t *testing.T) {
	ctrl := NewController(nil, newFakeCapturer(captureResult{text: "hello"}), &fakeSender{reply: "Hi there!"}, nil, nil, false)

	result := ctrl.Run(context.Background())
	require.NoError(t, result.Err)
	require.Len(t, ctrl.Turns(), 2)
	require.Equal(t, 2, ctrl.Handle(context.Background(), ipc.Request{Command: "status"}).Turns)

	setState(ctrl, fsm.StateSpeaking)
	require.ErrorContains(t, ctrl.Reset(), "cannot reset from state speaking")
	require.Len(t, ctrl.Turns(), 2)

	setState(ctrl, fsm.StateIdle)
	require.NoError(t, ctrl.Reset())
	require.Empty(t, ctrl.Turns())

	ctrl.Close()
	require.ErrorIs(t, ctrl.Reset(), ErrClosed)
}

func TestPresentAfterCloseDeliversNothing(t *testing.T) {
	renderer := &fakeRenderer{}
	synth := &fakeSynth{}
	ctrl := NewController(nil, newFakeCapturer(), nil, NewPresenter(renderer, synth, nil), nil, false)

	ctrl.Close()
	require.False(t, ctrl.present(context.Background(), "late reply"))
	require.Empty(t, renderer.turnsSeen())
	require.Empty(t, synth.spoken())
}

func TestRunRecognitionErrorReportsAndIdles(t *testing.T) {
	capturer := newFakeCapturer(captureResult{err: &speech.RecognitionError{Code: speech.CodeNetwork}})
	renderer := &fakeRenderer{}
	indicator := &fakeIndicator{}
	ctrl := NewController(nil, capturer, nil, NewPresenter(renderer, nil, nil), indicator, true)

	result := ctrl.Run(context.Background())
	var recErr *speech.RecognitionError
	require.ErrorAs(t, result.Err, &recErr)
	require.Equal(t, fsm.StateIdle, result.State)
	require.Equal(t, []string{"Speech recognition failed: network"}, renderer.errorsSeen())
	require.Equal(t, int32(1), indicator.errors.Load())
}

func TestRunContextCancelled(t *testing.T) {
	ctrl := NewController(nil, newFakeCapturer(), nil, nil, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan Result, 1)
	go func() { resultCh <- ctrl.Run(ctx) }()

	waitForState(t, ctrl, fsm.StateListening)
	cancel()

	result := <-resultCh
	require.ErrorIs(t, result.Err, context.Canceled)
	require.False(t, result.Quit)
	require.Equal(t, fsm.StateIdle, result.State)
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "Speech recognition is not supported here", userMessage(capture.ErrUnsupportedCapability))
	require.Equal(t, "Speech recognition failed: aborted", userMessage(&speech.RecognitionError{Code: "aborted"}))
	require.Equal(t, "Request failed: timeout", userMessage(&SubmissionFailed{Message: "timeout"}))
	require.Equal(t, "Cancelled", userMessage(context.Canceled))
	require.Equal(t, "other", userMessage(errors.New("other")))
}

func TestSubmissionFailedWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := asSubmissionFailed(cause)
	require.ErrorIs(t, err, cause)
	require.True(t, IsSubmissionFailed(err))
	require.Equal(t, "submission failed: dial tcp: connection refused", err.Error())

	already := &SubmissionFailed{Message: "status 502"}
	require.Same(t, already, asSubmissionFailed(already))
}

func setState(ctrl *Controller, state fsm.State) {
	ctrl.mu.Lock()
	ctrl.state = state
	ctrl.mu.Unlock()
}

func waitForState(t *testing.T, ctrl *Controller, desired fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == desired {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", desired, ctrl.State())
}

type captureResult struct {
	text string
	err  error
}

type fakeCapturer struct {
	results  chan captureResult
	stopText string

	stops   atomic.Int32
	closed  atomic.Bool
	waiting atomic.Bool
}

func newFakeCapturer(results ...captureResult) *fakeCapturer {
	ch := make(chan captureResult, len(results)+4)
	for _, r := range results {
		ch <- r
	}
	return &fakeCapturer{results: ch}
}

func (f *fakeCapturer) Listen(ctx context.Context) (string, error) {
	f.waiting.Store(true)
	defer f.waiting.Store(false)
	select {
	case r := <-f.results:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeCapturer) Stop() {
	f.stops.Add(1)
	select {
	case f.results <- captureResult{text: f.stopText}:
	default:
	}
}

func (f *fakeCapturer) Close() {
	f.closed.Store(true)
}

type fakeSender struct {
	block chan struct{}

	mu        sync.Mutex
	reply     string
	err       error
	sent      []string
	calls     atomic.Int32
	completed atomic.Int32
	cancelled atomic.Bool
}

func (f *fakeSender) Send(ctx context.Context, message string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.sent = append(f.sent, message)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			f.cancelled.Store(true)
			return "", ctx.Err()
		}
	}

	f.completed.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeSender) setReply(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
	f.err = nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeSynth struct {
	mu   sync.Mutex
	said []string
}

func (f *fakeSynth) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
	return nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

// blockingSynth speaks until its context is cancelled.
type blockingSynth struct {
	started     chan struct{}
	interrupted atomic.Bool
}

func (b *blockingSynth) Speak(ctx context.Context, _ string) error {
	b.started <- struct{}{}
	<-ctx.Done()
	b.interrupted.Store(true)
	return ctx.Err()
}

type fakeRenderer struct {
	mu     sync.Mutex
	states []fsm.State
	turns  []transcript.Turn
	errs   []string
	texts  []string
}

func (f *fakeRenderer) RenderState(state fsm.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeRenderer) RenderTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeRenderer) RenderTurn(turn transcript.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
}

func (f *fakeRenderer) RenderError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, message)
}

func (f *fakeRenderer) statesSeen() []fsm.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fsm.State(nil), f.states...)
}

func (f *fakeRenderer) turnsSeen() []transcript.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Turn(nil), f.turns...)
}

func (f *fakeRenderer) errorsSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errs...)
}

type fakeIndicator struct {
	listening     atomic.Int32
	submitting    atomic.Int32
	speaking      atomic.Int32
	errors        atomic.Int32
	finalizedCues atomic.Int32
	replyCues     atomic.Int32
	hides         atomic.Int32
}

func (f *fakeIndicator) ShowListening(context.Context)     { f.listening.Add(1) }
func (f *fakeIndicator) ShowSubmitting(context.Context)    { f.submitting.Add(1) }
func (f *fakeIndicator) ShowSpeaking(context.Context)      { f.speaking.Add(1) }
func (f *fakeIndicator) ShowError(context.Context, string) { f.errors.Add(1) }
func (f *fakeIndicator) CueFinalized(context.Context)      { f.finalizedCues.Add(1) }
func (f *fakeIndicator) CueReply(context.Context)          { f.replyCues.Add(1) }
func (f *fakeIndicator) Hide(context.Context)              { f.hides.Add(1) }
