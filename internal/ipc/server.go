package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// requestTimeout bounds how long a client may take to send its request.
const requestTimeout = 2 * time.Second

// Handler answers one control command.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers control clients until ctx ends or listener is closed, then
// waits for in-progress exchanges.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			exchange(ctx, conn, handler)
		}()
	}
}

// exchange reads one request from conn and writes the handler's response.
func exchange(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))

	var req Request
	resp := Response{}
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			resp.Error = fmt.Sprintf("decode request: %v", err)
		} else {
			resp.Error = fmt.Sprintf("read request: %v", err)
		}
	} else {
		resp = handler.Handle(ctx, req)
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
