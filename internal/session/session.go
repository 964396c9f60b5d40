// Package session coordinates voice chat cycles: capture, submission, and reply presentation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/voxchat/internal/capture"
	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/ipc"
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

// Result is the lifecycle output returned by one Run invocation.
type Result struct {
	State      fsm.State
	Turns      []transcript.Turn
	Cycles     int
	Quit       bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Capturer produces one finalized utterance per Listen call.
type Capturer interface {
	Listen(context.Context) (string, error)
	Stop()
	Close()
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowSubmitting(context.Context)
	ShowSpeaking(context.Context)
	ShowError(context.Context, string)
	CueFinalized(context.Context)
	CueReply(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowSubmitting(context.Context)    {}
func (noopIndicator) ShowSpeaking(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueFinalized(context.Context)      {}
func (noopIndicator) CueReply(context.Context)          {}
func (noopIndicator) Hide(context.Context)              {}

// Controller owns the state of one UI session.
type Controller struct {
	logger     *slog.Logger
	capture    Capturer
	sender     Sender
	presenter  *Presenter
	indicator  Indicator
	autoResume bool

	mu          sync.RWMutex
	state       fsm.State
	inflight    bool
	quit        bool
	stopAfter   bool
	cancelRun   context.CancelFunc
	cancelSend  context.CancelFunc
	cancelSpeak context.CancelFunc

	emitMu sync.Mutex
	closed atomic.Bool

	turns transcript.Log
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	capturer Capturer,
	sender Sender,
	presenter *Presenter,
	indicator Indicator,
	autoResume bool,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if capturer == nil {
		capturer = capture.New(nil, capture.Options{})
	}
	if sender == nil {
		sender = SenderFunc(func(context.Context, string) (string, error) {
			return "", errors.New("no completion endpoint configured")
		})
	}
	if presenter == nil {
		presenter = NewPresenter(nil, nil, logger)
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Controller{
		logger:     logger.With("component", "session"),
		capture:    capturer,
		sender:     sender,
		presenter:  presenter,
		indicator:  indicator,
		autoResume: autoResume,
		state:      fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Turns returns the visible transcript of this session.
func (c *Controller) Turns() []transcript.Turn {
	return c.turns.Turns()
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = next
	c.mu.Unlock()

	c.render(func(r Renderer) { r.RenderState(next) })
	return nil
}

// render delivers one UI update unless the controller has been closed.
func (c *Controller) render(fn func(Renderer)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.closed.Load() {
		return
	}
	fn(c.presenter.renderer)
}

// Run drives capture cycles until the session returns to Idle, the user
// quits, or ctx ends. With auto-resume, each spoken reply starts the next cycle.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}
	finish := func(err error) Result {
		result.State = c.State()
		result.Turns = c.turns.Turns()
		result.FinishedAt = time.Now()
		c.mu.RLock()
		result.Quit = c.quit
		c.mu.RUnlock()
		if !result.Quit {
			result.Err = err
		}
		return result
	}

	if c.closed.Load() {
		return finish(ErrClosed)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancelRun = cancel
	c.quit = false
	c.stopAfter = false
	c.mu.Unlock()

	if err := c.transition(fsm.EventStart); err != nil {
		return finish(err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.indicator.Hide(cleanupCtx)
	}()

	for {
		result.Cycles++
		c.indicator.ShowListening(runCtx)

		utterance, err := c.capture.Listen(runCtx)
		if err != nil {
			if c.interrupted() {
				c.reset()
				return finish(nil)
			}
			c.report(runCtx, err)
			c.reset()
			return finish(err)
		}

		if err := c.transition(fsm.EventFinalize); err != nil {
			c.reset()
			return finish(err)
		}
		c.indicator.CueFinalized(runCtx)

		if transcript.Clean(utterance) == "" {
			_ = c.transition(fsm.EventDiscard)
			return finish(ErrEmptyUtterance)
		}

		turns, err := c.Submit(runCtx, utterance)
		if err != nil {
			if c.interrupted() {
				c.reset()
				return finish(nil)
			}
			c.report(runCtx, err)
			c.reset()
			return finish(err)
		}

		if c.interrupted() {
			c.reset()
			return finish(nil)
		}
		c.indicator.CueReply(runCtx)
		c.indicator.ShowSpeaking(runCtx)
		spoken := c.present(runCtx, turns[1].Text)
		c.logger.Info("reply presented", "chars", len(turns[1].Text), "spoken", spoken)

		if c.interrupted() {
			c.reset()
			return finish(nil)
		}
		if !c.autoResume || c.stopping() {
			_ = c.transition(fsm.EventFinish)
			return finish(nil)
		}
		if err := c.transition(fsm.EventResume); err != nil {
			c.reset()
			return finish(err)
		}
	}
}

// present speaks the reply under a context that an explicit stop cancels.
// Rendering goes through the closed-controller guard.
func (c *Controller) present(ctx context.Context, text string) bool {
	if c.closed.Load() {
		return false
	}
	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancelSpeak = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancelSpeak = nil
		c.mu.Unlock()
	}()

	c.render(func(r Renderer) {
		r.RenderTurn(transcript.Turn{Role: transcript.RoleAssistant, Text: text})
	})
	if c.closed.Load() {
		return false
	}
	return c.presenter.Speak(speakCtx, text)
}

// stopping reports whether the user asked this run to end after the current step.
func (c *Controller) stopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopAfter
}

// interrupted reports whether the current run was quit, closed, or cancelled.
func (c *Controller) interrupted() bool {
	if c.closed.Load() {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quit
}

// report converts a failure into visible state.
func (c *Controller) report(ctx context.Context, err error) {
	message := userMessage(err)
	c.logger.Error("session cycle failed", "error", err)
	c.indicator.ShowError(context.WithoutCancel(ctx), message)
	c.render(func(r Renderer) { r.RenderError(message) })
}

// reset returns the controller to idle best-effort. A closed controller keeps
// its last state.
func (c *Controller) reset() {
	if c.closed.Load() {
		return
	}
	_ = c.transition(fsm.EventFail)
}

// Handle serves IPC commands for the active session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(c.State()), Turns: c.turns.Len(), Message: "status"}
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandQuit:
		return c.requestQuit()
	case ipc.CommandReset:
		if err := c.Reset(); err != nil {
			return ipc.Response{OK: false, State: string(c.State()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(c.State()), Message: "transcript cleared"}
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestStop ends the running session in Idle after its current step. While
// listening, the utterance heard so far is finalized without waiting for
// silence; while speaking, playback is cut short.
func (c *Controller) requestStop() ipc.Response {
	c.mu.Lock()
	state := c.state
	if state == fsm.StateIdle {
		c.mu.Unlock()
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}
	c.stopAfter = true
	cancelSpeak := c.cancelSpeak
	c.mu.Unlock()

	switch state {
	case fsm.StateListening:
		c.capture.Stop()
	case fsm.StateSpeaking:
		if cancelSpeak != nil {
			cancelSpeak()
		}
	}
	return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
}

// Reset clears the visible transcript. The session must be Idle.
func (c *Controller) Reset() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state != fsm.StateIdle {
		return fmt.Errorf("cannot reset from state %s", state)
	}
	c.turns.Reset()
	return nil
}

// requestQuit ends the running session at its current step.
func (c *Controller) requestQuit() ipc.Response {
	c.mu.Lock()
	state := c.state
	c.quit = true
	cancel := c.cancelRun
	cancelSend := c.cancelSend
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cancelSend != nil {
		cancelSend()
	}
	return ipc.Response{OK: true, State: string(state), Message: "quit requested"}
}

// Close tears the session down. An in-flight submission is left to complete
// but its reply is discarded, and no further UI updates are delivered.
func (c *Controller) Close() {
	c.emitMu.Lock()
	already := c.closed.Swap(true)
	c.emitMu.Unlock()
	if already {
		return
	}

	c.capture.Close()

	c.mu.Lock()
	cancel := c.cancelRun
	if !c.inflight {
		c.state = fsm.StateIdle
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// userMessage maps failures onto short user-facing text.
func userMessage(err error) string {
	var recErr *speech.RecognitionError
	var failed *SubmissionFailed
	switch {
	case errors.Is(err, speech.ErrInputClosed):
		return "Input closed"
	case errors.Is(err, capture.ErrUnsupportedCapability):
		return "Speech recognition is not supported here"
	case errors.As(err, &recErr):
		return "Speech recognition failed: " + recErr.Code
	case errors.As(err, &failed):
		return "Request failed: " + failed.Message
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	default:
		return err.Error()
	}
}
