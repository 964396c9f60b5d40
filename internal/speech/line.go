package speech

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrInputClosed indicates the line source reached EOF.
var ErrInputClosed = errors.New("recognizer input closed")

// LineRecognizer treats each non-empty input line as one final recognition result.
// Lines read while no run is active are buffered for the next run.
type LineRecognizer struct {
	src io.Reader

	once  sync.Once
	lines chan string

	mu   sync.Mutex
	stop chan struct{}
	eof  bool
}

// NewLineRecognizer reads recognition results from src.
func NewLineRecognizer(src io.Reader) *LineRecognizer {
	return &LineRecognizer{src: src, lines: make(chan string, 64)}
}

func (r *LineRecognizer) Start(ctx context.Context) (<-chan Event, error) {
	r.once.Do(func() { go r.scan() })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eof {
		return nil, ErrInputClosed
	}
	if r.stop != nil {
		close(r.stop)
	}
	stop := make(chan struct{})
	r.stop = stop

	out := make(chan Event, 8)
	go r.forward(ctx, out, stop)
	return out, nil
}

func (r *LineRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	return nil
}

func (r *LineRecognizer) scan() {
	defer close(r.lines)
	scanner := bufio.NewScanner(r.src)
	for scanner.Scan() {
		r.lines <- scanner.Text()
	}
}

// forward relays buffered lines into one run until stop, cancellation, or EOF.
func (r *LineRecognizer) forward(ctx context.Context, out chan<- Event, stop <-chan struct{}) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case line, ok := <-r.lines:
			if !ok {
				r.mu.Lock()
				r.eof = true
				r.mu.Unlock()
				return
			}
			if line == "" {
				continue
			}
			select {
			case out <- Result(line, true):
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
