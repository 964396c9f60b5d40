// Package proxy serves the completion endpoint and the browser voice chat page.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/voxchat/internal/llm"
	"github.com/rbright/voxchat/internal/session"
)

// ErrMessageRequired indicates a blank chat message.
var ErrMessageRequired = errors.New("message is required")

const historyTimeout = 5 * time.Second

// History is the optional exchange log.
type History interface {
	Append(ctx context.Context, values ...string) error
	Read(ctx context.Context) ([][]string, error)
}

// Service forwards chat messages to the language model and records exchanges.
type Service struct {
	completer llm.Completer
	history   History
	logger    *slog.Logger
}

// NewService builds a chat service. history may be nil.
func NewService(completer llm.Completer, history History, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		completer: completer,
		history:   history,
		logger:    logger.With("component", "proxy"),
	}
}

// Provider names the configured language model provider.
func (s *Service) Provider() string {
	return s.completer.Name()
}

// Chat sends one message as a single user prompt and returns the reply text.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrMessageRequired
	}

	started := time.Now()
	reply, err := s.completer.Complete(ctx, message)
	if err != nil {
		s.logger.Error("completion failed", "provider", s.completer.Name(), "error", err)
		return "", err
	}
	s.logger.Info("completion done",
		"provider", s.completer.Name(),
		"prompt_chars", len(message),
		"reply_chars", len(reply),
		"latency_ms", time.Since(started).Milliseconds(),
	)

	s.record(ctx, message, reply)
	return reply, nil
}

// Send implements session.Sender for in-process browser sessions.
func (s *Service) Send(ctx context.Context, message string) (string, error) {
	reply, err := s.Chat(ctx, message)
	if err != nil {
		return "", &session.SubmissionFailed{Message: internalServerError, Err: err}
	}
	return reply, nil
}

// History returns logged rows; ok is false when no log is configured.
func (s *Service) History(ctx context.Context) ([][]string, bool, error) {
	if s.history == nil {
		return nil, false, nil
	}
	rows, err := s.history.Read(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("read history: %w", err)
	}
	return rows, true, nil
}

// record appends the exchange best-effort; failures are logged only.
func (s *Service) record(ctx context.Context, message string, reply string) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.history.Append(ctx, message, reply); err != nil {
		s.logger.Warn("history append failed", "error", err)
	}
}
