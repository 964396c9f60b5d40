package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/voxchat/internal/audio"
	"github.com/rbright/voxchat/internal/capture"
	"github.com/rbright/voxchat/internal/chatclient"
	"github.com/rbright/voxchat/internal/config"
	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/indicator"
	"github.com/rbright/voxchat/internal/ipc"
	"github.com/rbright/voxchat/internal/session"
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

// commandListen runs a terminal voice chat session against the proxy. Each
// stdin line is one final recognition result; replies are printed and spoken.
func (r Runner) commandListen(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a voxchat listen session is already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	player := selectPlayer(ctx, cfg, logger)
	synth, err := newSynthesizer(cfg, player, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	term := indicator.NewTerminal(cfg.Indicator, r.Stderr, player, logger)
	defer term.Wait()

	capturer := capture.New(speech.NewLineRecognizer(r.stdin()), capture.Options{
		SilenceTimeout: millis(cfg.Capture.SilenceTimeoutMS),
		RestartBackoff: millis(cfg.Capture.RestartBackoffMS),
		Logger:         logger,
	})
	client := chatclient.New(cfg.Client.ProxyURL, millis(cfg.Client.TimeoutMS))
	view := &terminalRenderer{out: r.Stdout}
	controller := session.NewController(
		logger,
		capturer,
		client,
		session.NewPresenter(view, synth, logger),
		term,
		cfg.Capture.AutoResume,
	)
	defer controller.Close()

	// Submissions outlive ctx, so cancellation is delivered as a quit.
	stopQuit := context.AfterFunc(ctx, func() {
		controller.Handle(context.Background(), ipc.Request{Command: ipc.CommandQuit})
	})
	defer stopQuit()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	logger.Info("listen session started", "proxy", client.Endpoint(), "auto_resume", cfg.Capture.AutoResume)

	code := 0
	for {
		result := controller.Run(ctx)
		logSessionResult(logger, result)
		if restartable(ctx, result) {
			continue
		}
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(r.Stdout, "cancelled")
		case result.Err == nil, result.Quit:
		case errors.Is(result.Err, speech.ErrInputClosed):
		default:
			fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
			code = 1
		}
		break
	}

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return code
}

// restartable reports failures that leave the session usable: the next
// utterance simply starts a new run.
func restartable(ctx context.Context, result session.Result) bool {
	if ctx.Err() != nil || result.Quit || result.Err == nil {
		return false
	}
	return session.IsSubmissionFailed(result.Err) || errors.Is(result.Err, session.ErrEmptyUtterance)
}

func (r Runner) stdin() io.Reader {
	if r.Stdin != nil {
		return r.Stdin
	}
	return os.Stdin
}

// selectPlayer resolves the output sink only when something will play.
func selectPlayer(ctx context.Context, cfg config.Config, logger *slog.Logger) audio.Player {
	if cfg.Speech.Engine != config.EngineOpenAI && !cfg.Indicator.SoundEnable {
		return audio.Player{}
	}
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Output, cfg.Audio.Fallback)
	if err != nil {
		logger.Warn("audio sink selection failed; using server default", "error", err.Error())
		return audio.Player{}
	}
	if selection.Warning != "" {
		logger.Warn("audio sink fallback", "warning", selection.Warning)
	}
	return audio.Player{SinkID: selection.Device.ID}
}

func newSynthesizer(cfg config.Config, player audio.Player, logger *slog.Logger) (speech.Synthesizer, error) {
	switch cfg.Speech.Engine {
	case config.EngineNone:
		return speech.Unsupported{}, nil
	case config.EngineOpenAI:
		return speech.NewOpenAISynthesizer(speech.OpenAISynthesizerConfig{
			APIKey: cfg.Secrets.OpenAIAPIKey,
			Model:  cfg.Speech.Model,
			Voice:  cfg.Speech.Voice,
		}, player, logger)
	default:
		return speech.NewCommandSynthesizer(cfg.Speech.Command.Argv), nil
	}
}

// terminalRenderer prints the conversation; the indicator owns the status line.
type terminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminalRenderer) RenderState(fsm.State) {}

func (t *terminalRenderer) RenderTranscript(string) {}

func (t *terminalRenderer) RenderTurn(turn transcript.Turn) {
	label := "you"
	if turn.Role == transcript.RoleAssistant {
		label = "assistant"
	}
	t.printf("\r\033[K%s: %s\n", label, turn.Text)
}

func (t *terminalRenderer) RenderError(message string) {
	t.printf("\r\033[Kerror: %s\n", message)
}

func (t *terminalRenderer) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}
