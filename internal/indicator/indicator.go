// Package indicator renders session state on a terminal status line and plays
// short audio cues on listen, submit, reply, and error.
package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/voxchat/internal/audio"
	"github.com/rbright/voxchat/internal/config"
)

const cueTimeout = 2 * time.Second

// Terminal is the session indicator used by `voxchat listen`.
type Terminal struct {
	cfg    config.IndicatorConfig
	out    io.Writer
	player CuePlayer
	logger *slog.Logger

	mu      sync.Mutex
	visible bool

	cues sync.WaitGroup
	// cueMu keeps cues from overlapping.
	cueMu sync.Mutex
}

// NewTerminal builds an indicator writing to out. A nil player plays cues on
// the default Pulse sink.
func NewTerminal(cfg config.IndicatorConfig, out io.Writer, player CuePlayer, logger *slog.Logger) *Terminal {
	if player == nil {
		player = audio.Player{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if out == nil {
		out = io.Discard
	}
	return &Terminal{cfg: cfg, out: out, player: player, logger: logger}
}

// ShowListening signals the start of capture.
func (t *Terminal) ShowListening(ctx context.Context) {
	t.playCue(ctx, cueListen)
	t.status("●", t.cfg.TextListening)
}

// ShowSubmitting signals that the utterance is with the model.
func (t *Terminal) ShowSubmitting(context.Context) {
	t.status("…", t.cfg.TextSubmitting)
}

// ShowSpeaking signals reply playback.
func (t *Terminal) ShowSpeaking(context.Context) {
	t.status("♪", t.cfg.TextSpeaking)
}

// ShowError displays text, or the configured fallback, and plays the error cue.
func (t *Terminal) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = t.cfg.TextError
	}
	t.playCue(ctx, cueError)
	t.status("!", text)
}

// CueFinalized plays the end-of-utterance cue.
func (t *Terminal) CueFinalized(ctx context.Context) {
	t.playCue(ctx, cueFinalized)
}

// CueReply plays the reply-arrived cue.
func (t *Terminal) CueReply(ctx context.Context) {
	t.playCue(ctx, cueReply)
}

// Hide clears the status line.
func (t *Terminal) Hide(context.Context) {
	if !t.cfg.Enable {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.visible {
		return
	}
	_, _ = io.WriteString(t.out, "\r\033[K")
	t.visible = false
}

// Wait blocks until queued cues have played.
func (t *Terminal) Wait() {
	t.cues.Wait()
}

func (t *Terminal) status(glyph string, text string) {
	if !t.cfg.Enable {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintf(t.out, "\r\033[K%s %s", glyph, text)
	t.visible = true
}

// playCue plays asynchronously so the session never waits on the sound server.
func (t *Terminal) playCue(ctx context.Context, kind cueKind) {
	if !t.cfg.SoundEnable {
		return
	}
	t.cues.Add(1)
	go func() {
		defer t.cues.Done()
		t.cueMu.Lock()
		defer t.cueMu.Unlock()

		cueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cueTimeout)
		defer cancel()
		if err := emitCue(cueCtx, t.player, kind); err != nil {
			t.logger.Debug("indicator audio cue failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}
