package bridge

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHost runs submitted work inline and records every side effect.
type fakeHost struct {
	mu          sync.Mutex
	players     map[uuid.UUID]Player
	disconnects map[uuid.UUID]string
	opChanges   []opChange
	broadcasts  []Line
}

type opChange struct {
	ID uuid.UUID
	Op bool
}

func newFakeHost(players ...Player) *fakeHost {
	h := &fakeHost{
		players:     make(map[uuid.UUID]Player),
		disconnects: make(map[uuid.UUID]string),
	}
	for _, p := range players {
		h.players[p.ID] = p
	}
	return h
}

func (h *fakeHost) Player(id uuid.UUID) (Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.players[id]
	return p, ok
}

func (h *fakeHost) Disconnect(id uuid.UUID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.players, id)
	h.disconnects[id] = reason
}

func (h *fakeHost) SetOperator(id uuid.UUID, op bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opChanges = append(h.opChanges, opChange{ID: id, Op: op})
}

func (h *fakeHost) Broadcast(line Line) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, line)
}

func (h *fakeHost) Players() []Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Player, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, p)
	}
	return out
}

func (h *fakeHost) PlayerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.players)
}

func (h *fakeHost) Submit(fn func()) {
	fn()
}

func (h *fakeHost) disconnectReason(id uuid.UUID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.disconnects[id]
	return r, ok
}

func (h *fakeHost) ops() []opChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]opChange(nil), h.opChanges...)
}

func (h *fakeHost) lines() []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Line(nil), h.broadcasts...)
}

// controlPlane is a websocket server standing in for the Discord side.
type controlPlane struct {
	URL     string
	conns   chan *websocket.Conn
	headers chan http.Header
}

func newControlPlane(t *testing.T) *controlPlane {
	t.Helper()
	return newControlPlaneAt(t, "")
}

// newControlPlaneAt listens on addr, or on a random port when addr is empty.
func newControlPlaneAt(t *testing.T, addr string) *controlPlane {
	t.Helper()

	cp := &controlPlane{
		conns:   make(chan *websocket.Conn, 8),
		headers: make(chan http.Header, 8),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		cp.headers <- r.Header.Clone()
		cp.conns <- conn
	}))
	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		require.NoError(t, err)
		srv.Listener.Close()
		srv.Listener = ln
	}
	srv.Start()
	t.Cleanup(srv.Close)

	cp.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return cp
}

// accept waits for the next client connection.
func (cp *controlPlane) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-cp.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readMessage reads the next frame the client sent.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := Decode(data)
	require.NoError(t, err)
	return msg
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Message {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type() == typ {
			return msg
		}
	}
}

// newConnectedBridge returns a bridge whose socket is open to a fake control
// plane, along with the server side of that socket.
func newConnectedBridge(t *testing.T, host Host, opts ...Option) (*Bridge, *websocket.Conn) {
	t.Helper()

	cp := newControlPlane(t)
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	b := New(host, opts...)
	t.Cleanup(b.Close)

	b.Open(cp.URL)
	conn := cp.accept(t)
	require.Eventually(t, b.AuthAvailable, 2*time.Second, 10*time.Millisecond)
	return b, conn
}
