package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/transcript"
)

var (
	// ErrInvalidInput indicates an empty or whitespace-only utterance.
	ErrInvalidInput = errors.New("message is required")
	// ErrSubmissionInFlight indicates another submission is still outstanding.
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	// ErrClosed indicates the controller was torn down.
	ErrClosed = errors.New("session closed")
	// ErrEmptyUtterance indicates a cycle finalized without any speech.
	ErrEmptyUtterance = errors.New("no speech detected")
)

// Sender delivers one user message to the completion endpoint and returns the reply.
type Sender interface {
	Send(context.Context, string) (string, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(context.Context, string) (string, error)

func (f SenderFunc) Send(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// SubmissionFailed is a network, HTTP, or payload failure of the completion call.
type SubmissionFailed struct {
	Message string
	Err     error
}

func (e *SubmissionFailed) Error() string {
	return "submission failed: " + e.Message
}

func (e *SubmissionFailed) Unwrap() error {
	return e.Err
}

// IsSubmissionFailed reports whether err is a SubmissionFailed.
func IsSubmissionFailed(err error) bool {
	var failed *SubmissionFailed
	return errors.As(err, &failed)
}

func asSubmissionFailed(err error) error {
	var failed *SubmissionFailed
	if errors.As(err, &failed) {
		return err
	}
	return &SubmissionFailed{Message: err.Error(), Err: err}
}

// Submit sends a finalized utterance and returns the resulting user and
// assistant turns. The controller must be Finalizing. Empty input and
// overlapping calls are rejected without a network call.
//
// The request outlives ctx and Close: if the controller is closed while it is
// outstanding, it still completes, the reply is discarded and ErrClosed is
// returned. Only quit cancels it.
func (c *Controller) Submit(ctx context.Context, utterance string) ([]transcript.Turn, error) {
	text := transcript.Clean(utterance)
	if text == "" {
		return nil, ErrInvalidInput
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.inflight {
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	next, err := fsm.Transition(c.state, fsm.EventSubmit)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.state = next
	c.inflight = true
	sendCtx, cancelSend := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelSend = cancelSend
	c.mu.Unlock()
	defer cancelSend()

	c.render(func(r Renderer) { r.RenderState(next) })
	c.indicator.ShowSubmitting(ctx)
	c.logger.Info("submitting utterance", "chars", len(text))

	reply, err := c.sender.Send(sendCtx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = &SubmissionFailed{Message: "empty reply"}
	}

	c.mu.Lock()
	c.inflight = false
	c.cancelSend = nil
	if c.closed.Load() {
		c.state = fsm.StateIdle
		c.mu.Unlock()
		c.logger.Info("discarding reply after close")
		return nil, ErrClosed
	}
	if err != nil {
		c.state, _ = fsm.Transition(c.state, fsm.EventFail)
		c.mu.Unlock()
		c.render(func(r Renderer) { r.RenderState(fsm.StateIdle) })
		return nil, asSubmissionFailed(err)
	}
	next, err = fsm.Transition(c.state, fsm.EventReply)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("apply reply: %w", err)
	}
	c.state = next
	turns := []transcript.Turn{
		{Role: transcript.RoleUser, Text: text},
		{Role: transcript.RoleAssistant, Text: strings.TrimSpace(reply)},
	}
	c.turns.Append(turns...)
	c.mu.Unlock()

	c.render(func(r Renderer) {
		r.RenderState(next)
		r.RenderTurn(turns[0])
	})
	return turns, nil
}
