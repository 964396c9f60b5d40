package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrNoSession reports that nothing is serving the control socket.
var ErrNoSession = errors.New("no active voxchat session")

// RemoteError is a command the session received and rejected.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Send performs one request/response exchange on the control socket. A missing
// socket or a socket nobody accepts on yields ErrNoSession.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		if absent(err) {
			return Response{}, fmt.Errorf("%w: %w", ErrNoSession, err)
		}
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Forward sends command and turns a rejected command into a *RemoteError.
func Forward(ctx context.Context, path string, command string, timeout time.Duration) (Response, error) {
	resp, err := Send(ctx, path, Request{Command: command}, timeout)
	if errors.Is(err, ErrNoSession) {
		return Response{}, err
	}
	if err != nil {
		return Response{}, fmt.Errorf("forward command %q: %w", command, err)
	}
	if !resp.OK {
		return resp, &RemoteError{Command: command, Message: resp.Error}
	}
	return resp, nil
}

// Probe reports whether a responsive session owns path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoSession):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

// absent reports dial failures meaning no listener exists.
func absent(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "no such file or directory")
}
