package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

// Renderer is the visual surface of one UI session.
type Renderer interface {
	RenderState(fsm.State)
	RenderTranscript(string)
	RenderTurn(transcript.Turn)
	RenderError(string)
}

type noopRenderer struct{}

func (noopRenderer) RenderState(fsm.State)      {}
func (noopRenderer) RenderTranscript(string)    {}
func (noopRenderer) RenderTurn(transcript.Turn) {}
func (noopRenderer) RenderError(string)         {}

// Presenter shows a reply and reads it aloud.
type Presenter struct {
	renderer    Renderer
	synthesizer speech.Synthesizer
	logger      *slog.Logger
}

// NewPresenter builds a presenter. A nil synthesizer presents visually only.
func NewPresenter(renderer Renderer, synthesizer speech.Synthesizer, logger *slog.Logger) *Presenter {
	if renderer == nil {
		renderer = noopRenderer{}
	}
	if synthesizer == nil {
		synthesizer = speech.Unsupported{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Presenter{renderer: renderer, synthesizer: synthesizer, logger: logger}
}

// Present renders text, then blocks until speech playback ends. It reports
// whether the text was spoken; synthesis failures degrade to visual-only.
func (p *Presenter) Present(ctx context.Context, text string) bool {
	p.renderer.RenderTurn(transcript.Turn{Role: transcript.RoleAssistant, Text: text})
	return p.Speak(ctx, text)
}

// Speak reads text aloud without rendering it.
func (p *Presenter) Speak(ctx context.Context, text string) bool {
	err := p.synthesizer.Speak(ctx, text)
	switch {
	case err == nil:
		return true
	case errors.Is(err, speech.ErrUnsupported):
		p.logger.Debug("speech synthesis unavailable; reply shown only", "error", err)
	case ctx.Err() != nil:
		p.logger.Debug("speech interrupted", "error", err)
	default:
		p.logger.Warn("speech synthesis failed; reply shown only", "error", err)
	}
	return false
}
