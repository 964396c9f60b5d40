package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/rbright/voxchat/internal/fsm"
	"github.com/rbright/voxchat/internal/speech"
	"github.com/rbright/voxchat/internal/transcript"
)

const writeTimeout = 5 * time.Second

var errDisconnected = errors.New("browser disconnected")

// frameWriter is the write half of a websocket connection.
type frameWriter interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
}

// peer serializes writes to one browser and tracks its lifetime.
type peer struct {
	conn   frameWriter
	logger *slog.Logger

	mu sync.Mutex

	doneOnce sync.Once
	done     chan struct{}
}

func newPeer(conn frameWriter, logger *slog.Logger) *peer {
	return &peer{conn: conn, logger: logger, done: make(chan struct{})}
}

func (p *peer) send(msg Message) error {
	select {
	case <-p.done:
		return errDisconnected
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := p.conn.WriteJSON(msg); err != nil {
		p.logger.Debug("websocket write failed", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

func (p *peer) disconnect() {
	p.doneOnce.Do(func() { close(p.done) })
}

// recognizer exposes the browser's recognition engine as a speech.Recognizer.
type recognizer struct {
	peer      *peer
	supported atomic.Bool

	mu     sync.Mutex
	run    int
	events chan speech.Event
}

func (r *recognizer) Start(context.Context) (<-chan speech.Event, error) {
	if !r.supported.Load() {
		return nil, speech.ErrUnsupported
	}

	r.mu.Lock()
	r.closeLocked()
	r.run++
	run := r.run
	events := make(chan speech.Event, 32)
	r.events = events
	r.mu.Unlock()

	if err := r.peer.send(Message{Type: TypeStart, Run: run}); err != nil {
		r.ended(run)
		return nil, err
	}
	return events, nil
}

func (r *recognizer) Stop() error {
	r.mu.Lock()
	active := r.events != nil
	run := r.run
	r.closeLocked()
	r.mu.Unlock()

	if !active {
		return nil
	}
	return r.peer.send(Message{Type: TypeAbort, Run: run})
}

// deliver routes one browser event to the current run; stale runs are dropped.
func (r *recognizer) deliver(run int, ev speech.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run != r.run || r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.peer.logger.Warn("recognition event dropped", "run", run)
	}
}

// ended closes run when the browser engine stops on its own.
func (r *recognizer) ended(run int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run == r.run {
		r.closeLocked()
	}
}

func (r *recognizer) closeLocked() {
	if r.events != nil {
		close(r.events)
		r.events = nil
	}
}

// synthesizer exposes the browser's speech synthesis as a speech.Synthesizer.
type synthesizer struct {
	peer      *peer
	supported atomic.Bool

	mu      sync.Mutex
	nextID  int
	pending map[int]chan struct{}
}

func (s *synthesizer) Speak(ctx context.Context, text string) error {
	if !s.supported.Load() {
		return speech.ErrUnsupported
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	spoken := make(chan struct{})
	if s.pending == nil {
		s.pending = make(map[int]chan struct{})
	}
	s.pending[id] = spoken
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.peer.send(Message{Type: TypeSpeak, ID: id, Text: text}); err != nil {
		return err
	}

	select {
	case <-spoken:
		return nil
	case <-ctx.Done():
		_ = s.peer.send(Message{Type: TypeHush, ID: id})
		return ctx.Err()
	case <-s.peer.done:
		return errDisconnected
	}
}

func (s *synthesizer) spoken(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.pending[id]; ok {
		close(ch)
		delete(s.pending, id)
	}
}

// renderer mirrors session UI updates to the page.
type renderer struct {
	peer *peer
}

func (r renderer) RenderState(state fsm.State) {
	_ = r.peer.send(Message{Type: TypeState, State: string(state)})
}

func (r renderer) RenderTranscript(text string) {
	_ = r.peer.send(Message{Type: TypeTranscript, Text: text})
}

func (r renderer) RenderTurn(turn transcript.Turn) {
	_ = r.peer.send(Message{Type: TypeTurn, Role: string(turn.Role), Text: turn.Text})
}

func (r renderer) RenderError(message string) {
	_ = r.peer.send(Message{Type: TypeError, Message: message})
}

var _ frameWriter = (*websocket.Conn)(nil)
