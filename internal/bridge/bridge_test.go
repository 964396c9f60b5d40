package bridge

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/voxchat/internal/session"
)

func startBridge(t *testing.T, sender session.Sender, cfg Config) (*Bridge, string) {
	t.Helper()
	b := New(sender, cfg, nil)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/session", fiberws.New(b.Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return b, "ws://" + ln.Addr().String() + "/ws/session"
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(msg Message) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect reads until a message matches, returning it and everything seen before.
func (c *client) expect(match func(Message) bool) (Message, []Message) {
	c.t.Helper()
	var seen []Message
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var msg Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if match(msg) {
			return msg, seen
		}
		seen = append(seen, msg)
	}
}

func ofType(kind string) func(Message) bool {
	return func(m Message) bool { return m.Type == kind }
}

func state(name string) func(Message) bool {
	return func(m Message) bool { return m.Type == TypeState && m.State == name }
}

func TestBrowserSessionHelloScenario(t *testing.T) {
	var sent atomic.Value
	sender := session.SenderFunc(func(_ context.Context, message string) (string, error) {
		sent.Store(message)
		return "Hi there!", nil
	})
	_, url := startBridge(t, sender, Config{SilenceTimeout: 40 * time.Millisecond})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true, Synthesis: true})
	c.expect(state("idle"))
	c.send(Message{Type: TypeListen})

	start, _ := c.expect(ofType(TypeStart))
	require.Equal(t, 1, start.Run)
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "hel"})
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "hello", Final: true})

	speak, before := c.expect(ofType(TypeSpeak))
	require.Equal(t, "Hi there!", speak.Text)
	require.Equal(t, "hello", sent.Load())

	var turns []Message
	var sawAbort bool
	for _, m := range before {
		switch m.Type {
		case TypeTurn:
			turns = append(turns, m)
		case TypeAbort:
			sawAbort = true
		}
	}
	require.True(t, sawAbort)
	require.Equal(t, []Message{
		{Type: TypeTurn, Role: "user", Text: "hello"},
		{Type: TypeTurn, Role: "assistant", Text: "Hi there!"},
	}, turns)

	c.send(Message{Type: TypeSpoken, ID: speak.ID})
	c.expect(state("idle"))
}

func TestBrowserSessionAutoResume(t *testing.T) {
	sender := session.SenderFunc(func(context.Context, string) (string, error) { return "ok", nil })
	_, url := startBridge(t, sender, Config{SilenceTimeout: 30 * time.Millisecond, AutoResume: true})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true, Synthesis: false})
	c.send(Message{Type: TypeListen})

	first, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeResult, Run: first.Run, Text: "one", Final: true})

	second, _ := c.expect(ofType(TypeStart))
	require.Equal(t, first.Run+1, second.Run)
}

func TestBrowserSessionNetworkErrorRestartsOnce(t *testing.T) {
	sender := session.SenderFunc(func(context.Context, string) (string, error) { return "unused", nil })
	_, url := startBridge(t, sender, Config{SilenceTimeout: time.Hour, RestartBackoff: 20 * time.Millisecond})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true, Synthesis: true})
	c.send(Message{Type: TypeListen})

	first, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeError, Run: first.Run, Error: "network"})
	c.send(Message{Type: TypeEnd, Run: first.Run})

	second, _ := c.expect(ofType(TypeStart))
	require.Equal(t, first.Run+1, second.Run)
	c.send(Message{Type: TypeError, Run: second.Run, Error: "network"})

	failure, seen := c.expect(func(m Message) bool { return m.Type == TypeError })
	require.Equal(t, "Speech recognition failed: network", failure.Message)
	for _, m := range seen {
		require.NotEqual(t, TypeStart, m.Type)
	}
	c.expect(state("idle"))
}

func TestBrowserSessionUnsupportedRecognition(t *testing.T) {
	_, url := startBridge(t, nil, Config{})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: false})
	c.send(Message{Type: TypeListen})

	failure, _ := c.expect(ofType(TypeError))
	require.Equal(t, "Speech recognition is not supported here", failure.Message)
}

func TestBrowserSessionStopFinalizes(t *testing.T) {
	sender := session.SenderFunc(func(_ context.Context, message string) (string, error) { return "got " + message, nil })
	_, url := startBridge(t, sender, Config{SilenceTimeout: time.Hour})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true})
	c.send(Message{Type: TypeListen})
	start, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "stop now"})
	c.expect(ofType(TypeTranscript))
	c.send(Message{Type: TypeStop})

	turn, _ := c.expect(func(m Message) bool { return m.Type == TypeTurn && m.Role == "assistant" })
	require.Equal(t, "got stop now", turn.Text)
}

func TestBrowserSessionStopWhileSpeakingEndsInIdle(t *testing.T) {
	sender := session.SenderFunc(func(context.Context, string) (string, error) { return "a long answer", nil })
	_, url := startBridge(t, sender, Config{SilenceTimeout: 20 * time.Millisecond, AutoResume: true})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true, Synthesis: true})
	c.send(Message{Type: TypeListen})
	start, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "tell me a story", Final: true})

	speak, _ := c.expect(ofType(TypeSpeak))
	c.send(Message{Type: TypeStop})

	hush, _ := c.expect(ofType(TypeHush))
	require.Equal(t, speak.ID, hush.ID)
	_, seen := c.expect(state("idle"))
	for _, m := range seen {
		require.NotEqual(t, TypeStart, m.Type)
	}
}

func TestBrowserSessionResetClearsTranscript(t *testing.T) {
	sender := session.SenderFunc(func(context.Context, string) (string, error) { return "ok", nil })
	_, url := startBridge(t, sender, Config{SilenceTimeout: 20 * time.Millisecond})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true})
	c.send(Message{Type: TypeListen})
	start, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "hello", Final: true})
	c.expect(func(m Message) bool { return m.Type == TypeTurn && m.Role == "assistant" })
	c.expect(state("idle"))

	c.send(Message{Type: TypeReset})
	c.expect(ofType(TypeCleared))
}

func TestBrowserDisconnectDuringSubmissionTearsDown(t *testing.T) {
	release := make(chan struct{})
	var returned, cancelled atomic.Bool
	sender := session.SenderFunc(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
			cancelled.Store(true)
			return "", ctx.Err()
		}
		returned.Store(true)
		return "too late", nil
	})
	b, url := startBridge(t, sender, Config{SilenceTimeout: 20 * time.Millisecond})
	c := dial(t, url)

	c.send(Message{Type: TypeHello, Recognition: true, Synthesis: true})
	c.send(Message{Type: TypeListen})
	start, _ := c.expect(ofType(TypeStart))
	c.send(Message{Type: TypeResult, Run: start.Run, Text: "hello", Final: true})
	c.expect(state("submitting"))

	require.Equal(t, 1, b.Active())
	require.NoError(t, c.conn.Close())
	require.Never(t, cancelled.Load, 100*time.Millisecond, 10*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool { return returned.Load() && b.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.False(t, cancelled.Load())
}

func TestMalformedMessageReportsError(t *testing.T) {
	_, url := startBridge(t, nil, Config{})
	c := dial(t, url)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	failure, _ := c.expect(ofType(TypeError))
	require.Equal(t, "malformed message", failure.Message)
}
