package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/rbright/voxchat/internal/capture"
	"github.com/rbright/voxchat/internal/ipc"
	"github.com/rbright/voxchat/internal/session"
	"github.com/rbright/voxchat/internal/speech"
)

// Config tunes every browser session.
type Config struct {
	SilenceTimeout time.Duration
	RestartBackoff time.Duration
	AutoResume     bool
}

// Bridge hosts browser sessions against one completion sender.
type Bridge struct {
	sender session.Sender
	cfg    Config
	logger *slog.Logger

	active atomic.Int64
}

// New builds a bridge.
func New(sender session.Sender, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{sender: sender, cfg: cfg, logger: logger.With("component", "bridge")}
}

// Active returns the number of connected browser sessions.
func (b *Bridge) Active() int {
	return int(b.active.Load())
}

// Handle serves one websocket connection until the browser disconnects.
// The connection is one UI mount: it owns one controller and capture session.
func (b *Bridge) Handle(conn *websocket.Conn) {
	b.active.Add(1)
	defer b.active.Add(-1)

	id := uuid.NewString()
	logger := b.logger.With("session_id", id)
	logger.Info("browser session connected", "remote", conn.RemoteAddr().String())

	p := newPeer(conn, logger)
	rec := &recognizer{peer: p}
	synth := &synthesizer{peer: p}
	view := renderer{peer: p}

	capturer := capture.New(rec, capture.Options{
		SilenceTimeout: b.cfg.SilenceTimeout,
		RestartBackoff: b.cfg.RestartBackoff,
		Logger:         logger,
		OnTranscript:   view.RenderTranscript,
	})
	ctrl := session.NewController(
		logger,
		capturer,
		b.sender,
		session.NewPresenter(view, synth, logger),
		nil,
		b.cfg.AutoResume,
	)

	ctx, cancel := context.WithCancel(context.Background())
	var runs sync.WaitGroup
	var running atomic.Bool

	defer func() {
		p.disconnect()
		ctrl.Close()
		cancel()
		runs.Wait()
		logger.Info("browser session closed", "turns", len(ctrl.Turns()))
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("websocket read ended", "error", err)
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = p.send(Message{Type: TypeError, Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case TypeHello:
			rec.supported.Store(msg.Recognition)
			synth.supported.Store(msg.Synthesis)
			logger.Info("browser capabilities", "recognition", msg.Recognition, "synthesis", msg.Synthesis)
			view.RenderState(ctrl.State())
		case TypeListen:
			if !running.CompareAndSwap(false, true) {
				continue
			}
			runs.Add(1)
			go func() {
				defer runs.Done()
				defer running.Store(false)
				result := ctrl.Run(ctx)
				logger.Info("session run finished",
					"state", string(result.State),
					"cycles", result.Cycles,
					"error", errString(result.Err),
				)
			}()
		case TypeResult:
			rec.deliver(msg.Run, speech.Result(msg.Text, msg.Final))
		case TypeError:
			rec.deliver(msg.Run, speech.Failure(&speech.RecognitionError{Code: msg.Error, Message: msg.Message}))
		case TypeEnd:
			rec.ended(msg.Run)
		case TypeSpoken:
			synth.spoken(msg.ID)
		case TypeStop:
			resp := ctrl.Handle(ctx, ipc.Request{Command: ipc.CommandStop})
			if !resp.OK {
				logger.Debug("stop ignored", "state", resp.State, "error", resp.Error)
			}
		case TypeReset:
			if err := ctrl.Reset(); err != nil {
				_ = p.send(Message{Type: TypeError, Message: err.Error()})
				continue
			}
			_ = p.send(Message{Type: TypeCleared})
		default:
			logger.Debug("unknown message type", "type", msg.Type)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
