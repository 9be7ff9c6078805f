package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskmgr818/rehab-client/internal/protocol"
)

type recordingHandler struct {
	opened chan struct{}
	closed chan struct{}
	msgs   chan []byte
	errs   chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		opened: make(chan struct{}, 8),
		closed: make(chan struct{}, 8),
		msgs:   make(chan []byte, 64),
		errs:   make(chan error, 8),
	}
}

func (h *recordingHandler) OnOpened()            { h.opened <- struct{}{} }
func (h *recordingHandler) OnClosed()            { h.closed <- struct{}{} }
func (h *recordingHandler) OnMessage(raw []byte) { h.msgs <- raw }
func (h *recordingHandler) OnError(err error)    { h.errs <- err }

var upgrader = websocket.Upgrader{}

// newTestServer upgrades connections and hands them to serve.
func newTestServer(t *testing.T, serve func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serve(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)

	if got := client.State(); got != StateDisconnected {
		t.Errorf("initial state = %s, want disconnected", got)
	}

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitSignal(t, handler.opened, "opened")
	if got := client.State(); got != StateOpen {
		t.Errorf("state after connect = %s, want open", got)
	}

	client.Disconnect()
	waitSignal(t, handler.closed, "closed")
	if got := client.State(); got != StateClosed {
		t.Errorf("state after disconnect = %s, want closed", got)
	}

	// Disconnect is idempotent.
	client.Disconnect()
}

func TestConnectWhileOpen(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	if err := client.Connect(); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectFailure(t *testing.T) {
	handler := newRecordingHandler()
	client := NewClient(context.Background(), "ws://127.0.0.1:1/ws", handler)

	err := client.Connect()
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
	if got := client.State(); got != StateErrored {
		t.Errorf("state after failed connect = %s, want errored", got)
	}
}

// Disconnect during an in-flight dial must cancel the attempt; a dial
// completing afterwards may never install its connection behind a newer
// one.
func TestDisconnectCancelsInFlightDial(t *testing.T) {
	release := make(chan struct{})
	var releaseOnce sync.Once
	var holdFirst atomic.Bool
	holdFirst.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holdFirst.CompareAndSwap(true, false) {
			// Hold the handshake open so the dial stays in flight.
			<-release
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	deadline := time.After(2 * time.Second)
	for client.State() != StateConnecting {
		select {
		case <-deadline:
			t.Fatal("client never entered connecting")
		case <-time.After(5 * time.Millisecond):
		}
	}

	client.Disconnect()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnection) {
			t.Fatalf("cancelled dial error = %v, want ErrConnection", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled dial never returned")
	}
	releaseOnce.Do(func() { close(release) })

	if err := client.Connect(); err != nil {
		t.Fatalf("reconnect after cancelled dial: %v", err)
	}
	waitSignal(t, handler.opened, "opened")
	if got := client.State(); got != StateOpen {
		t.Errorf("state = %s, want open", got)
	}
	client.Disconnect()
}

func TestSendRequiresOpenConnection(t *testing.T) {
	handler := newRecordingHandler()
	client := NewClient(context.Background(), "ws://127.0.0.1:1/ws", handler)

	if client.Send(protocol.GetActions{}) {
		t.Error("Send accepted while disconnected")
	}
}

func TestSendDeliversEncodedCommand(t *testing.T) {
	received := make(chan []byte, 1)
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	if !client.Send(protocol.StartEvaluation{ActionID: "squat"}) {
		t.Fatal("Send not accepted on open connection")
	}

	select {
	case msg := <-received:
		var decoded map[string]any
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("server received invalid JSON: %v", err)
		}
		if decoded["type"] != "start_evaluation" || decoded["action_id"] != "squat" {
			t.Errorf("server received %v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the command")
	}
}

func TestMessagesDeliveredInOrder(t *testing.T) {
	frames := []string{
		`{"type":"result","count":1,"stage":"up","angle":160}`,
		`{"type":"processed_frame","data":"YQ=="}`,
		`{"type":"result","count":2,"stage":"down","angle":85}`,
	}
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	for i, want := range frames {
		select {
		case got := <-handler.msgs:
			if string(got) != want {
				t.Errorf("message %d = %s, want %s", i, got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestServerCloseSurfacesClosed(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})

	handler := newRecordingHandler()
	client := NewClient(context.Background(), wsURL(server), handler)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitSignal(t, handler.closed, "closed")
	if got := client.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
	if client.Send(protocol.GetActions{}) {
		t.Error("Send accepted after server close")
	}
}

func TestParentContextCancelClosesConnection(t *testing.T) {
	server := newTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	handler := newRecordingHandler()
	client := NewClient(ctx, wsURL(server), handler)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cancel()
	waitSignal(t, handler.closed, "closed")
}
