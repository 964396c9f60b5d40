// Package capture turns a continuous speech recognizer into one finalized utterance per listening cycle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/voxchat/internal/speech"
)

const (
	DefaultSilenceTimeout = 1500 * time.Millisecond
	DefaultRestartBackoff = time.Second
)

var (
	// ErrUnsupportedCapability indicates the platform offers no speech recognition.
	ErrUnsupportedCapability = errors.New("speech recognition is not supported")
	// ErrClosed indicates the session was torn down.
	ErrClosed = errors.New("capture session closed")
	// ErrAlreadyListening indicates a second concurrent Listen call.
	ErrAlreadyListening = errors.New("capture session already listening")
)

// Options tunes one capture session.
type Options struct {
	SilenceTimeout time.Duration
	RestartBackoff time.Duration
	Logger         *slog.Logger
	// OnTranscript receives the working utterance after each change. It is
	// never called once Close has returned and must not call Close itself.
	OnTranscript func(string)
}

// Session owns one recognizer for the lifetime of a UI mount.
type Session struct {
	recognizer speech.Recognizer
	opts       Options
	logger     *slog.Logger

	mu        sync.Mutex
	listening bool
	stop      chan struct{}

	emitMu sync.Mutex
	closed bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New constructs a session. A nil recognizer makes every Listen fail with
// ErrUnsupportedCapability.
func New(recognizer speech.Recognizer, opts Options) *Session {
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = DefaultSilenceTimeout
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = DefaultRestartBackoff
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Session{
		recognizer: recognizer,
		opts:       opts,
		logger:     logger.With("component", "capture"),
		closeCh:    make(chan struct{}),
	}
}

// Listen runs one capture cycle and returns the finalized utterance. The
// utterance may be empty when Stop arrives before any speech.
func (s *Session) Listen(ctx context.Context) (string, error) {
	if s.recognizer == nil {
		return "", ErrUnsupportedCapability
	}

	stop, err := s.begin()
	if err != nil {
		return "", err
	}
	defer s.end()

	events, err := s.recognizer.Start(ctx)
	if err != nil {
		return "", s.failure(err)
	}
	s.logger.Debug("capture started")

	machine := NewMachine()
	var silence, restart deadline
	defer silence.cancel()
	defer restart.cancel()

	for {
		var ev Event
		select {
		case <-ctx.Done():
			s.stopRecognizer()
			return "", ctx.Err()
		case <-s.closeCh:
			s.stopRecognizer()
			return "", ErrClosed
		case <-stop:
			stop = nil
			ev = Event{Kind: StopRequested}
		case re, ok := <-events:
			switch {
			case !ok:
				events = nil
				ev = Event{Kind: RecognitionEnded}
			case re.Kind == speech.EventError:
				ev = Event{Kind: RecognitionFailed, Err: re.Err}
			default:
				ev = Event{Kind: TranscriptUpdated, Text: re.Text, Final: re.Final}
			}
		case <-silence.C():
			silence.fired()
			ev = Event{Kind: SilenceDetected}
		case <-restart.C():
			restart.fired()
			ev = Event{Kind: RestartDue}
		}

		queue := machine.Apply(ev)
		for len(queue) > 0 {
			effect := queue[0]
			queue = queue[1:]

			switch effect.Kind {
			case ResetSilence:
				silence.arm(s.opts.SilenceTimeout)
			case CancelTimers:
				silence.cancel()
				restart.cancel()
			case StopRecognizer:
				s.stopRecognizer()
			case ScheduleRestart:
				s.logger.Warn("recognition interrupted; restarting once", "backoff", s.opts.RestartBackoff.String(), "error", ev.Err)
				restart.arm(s.opts.RestartBackoff)
			case StartRecognizer:
				next, err := s.recognizer.Start(ctx)
				if err != nil {
					queue = append(queue, machine.Apply(Event{Kind: RecognitionFailed, Err: err})...)
					continue
				}
				events = next
			case EmitTranscript:
				s.emit(effect.Text)
			case Finalize:
				s.logger.Debug("utterance finalized", "chars", len(effect.Text))
				return effect.Text, nil
			case Fail:
				return "", s.failure(effect.Err)
			}
		}
	}
}

// Stop finalizes the current cycle without waiting for silence. It is a no-op
// when no cycle is running.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Close tears the session down: pending timers are cancelled, the recognizer
// is stopped, and no further transcript callbacks are delivered.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.emitMu.Lock()
		s.closed = true
		s.emitMu.Unlock()
		close(s.closeCh)
	})
}

func (s *Session) begin() (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closeCh:
		return nil, ErrClosed
	default:
	}
	if s.listening {
		return nil, ErrAlreadyListening
	}
	s.listening = true
	s.stop = make(chan struct{})
	return s.stop, nil
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = false
	s.stop = nil
}

func (s *Session) emit(text string) {
	if s.opts.OnTranscript == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	s.opts.OnTranscript(text)
}

func (s *Session) stopRecognizer() {
	if err := s.recognizer.Stop(); err != nil {
		s.logger.Debug("recognizer stop failed", "error", err)
	}
}

// failure maps recognizer errors onto the capture error taxonomy.
func (s *Session) failure(err error) error {
	if errors.Is(err, speech.ErrUnsupported) {
		return fmt.Errorf("%w: %w", ErrUnsupportedCapability, err)
	}
	s.logger.Error("recognition failed", "error", err)
	return err
}

// deadline is a single re-armable timer whose channel is nil while disarmed.
type deadline struct {
	timer *time.Timer
}

func (d *deadline) arm(after time.Duration) {
	d.cancel()
	d.timer = time.NewTimer(after)
}

func (d *deadline) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *deadline) fired() {
	d.timer = nil
}

func (d *deadline) C() <-chan time.Time {
	if d.timer == nil {
		return nil
	}
	return d.timer.C
}
