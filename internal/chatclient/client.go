// Package chatclient calls a running proxy's POST /api/chat endpoint.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rbright/voxchat/internal/session"
)

const maxResponseBytes = 1 << 20

// Client sends user messages to a completion proxy.
type Client struct {
	endpoint string
	http     *http.Client
}

// New builds a client for the proxy at baseURL, e.g. http://127.0.0.1:3000.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/api/chat",
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the full chat URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response *string `json:"response"`
	Error    string  `json:"error"`
}

// Send posts one message. Every failure is a *session.SubmissionFailed.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return "", failed("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", failed("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", failed("network error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", failed("read response", err)
	}

	var decoded chatResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, decoded.Error)
		}
		return "", &session.SubmissionFailed{Message: msg}
	}
	if decodeErr != nil {
		return "", failed("malformed response", decodeErr)
	}
	if decoded.Response == nil {
		return "", &session.SubmissionFailed{Message: "malformed response: missing response field"}
	}
	return *decoded.Response, nil
}

func failed(what string, err error) error {
	return &session.SubmissionFailed{Message: fmt.Sprintf("%s: %v", what, err), Err: err}
}
