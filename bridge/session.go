package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultReconnectCooldown = time.Second
	dialTimeout              = 10 * time.Second

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20
	sendQueueSize  = 256
)

var (
	// ErrNotOpen is returned by Send while the socket is not open.
	ErrNotOpen = errors.New("bridge: websocket not open")
	// ErrSendQueueFull is returned by Send when the outbound queue is saturated.
	ErrSendQueueFull = errors.New("bridge: send queue full")
)

// ConnectionState is the lifecycle state of the control plane socket.
type ConnectionState int32

const (
	StateClosed ConnectionState = iota
	StateConnecting
	StateOpen
)

func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// SessionEventHandler receives socket lifecycle events. OnMessage is called
// from a single goroutine in arrival order.
type SessionEventHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// SessionConfig tunes a Session. Zero values fall back to defaults.
type SessionConfig struct {
	ReconnectDelay    time.Duration
	ReconnectCooldown time.Duration
	Dialer            *websocket.Dialer
	Tokens            TokenProvider
	Logger            *slog.Logger
}

// link is one dialed socket together with its outbound queue.
type link struct {
	gen       uint64
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Session owns the control plane socket and keeps it connected.
type Session struct {
	handler        SessionEventHandler
	dialer         *websocket.Dialer
	tokens         TokenProvider
	logger         *slog.Logger
	reconnectDelay time.Duration
	cooldown       *rate.Limiter
	now            func() time.Time

	mu     sync.Mutex
	url    string
	gen    uint64
	state  ConnectionState
	conn   *link
	retry  *time.Timer
	closed bool
}

// NewSession creates a Session. Nothing is dialed until Open.
func NewSession(handler SessionEventHandler, cfg SessionConfig) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReconnectCooldown <= 0 {
		cfg.ReconnectCooldown = defaultReconnectCooldown
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		handler:        handler,
		dialer:         cfg.Dialer,
		tokens:         cfg.Tokens,
		logger:         cfg.Logger.With("component", "session"),
		reconnectDelay: cfg.ReconnectDelay,
		cooldown:       rate.NewLimiter(rate.Every(cfg.ReconnectCooldown), 1),
		now:            time.Now,
	}
}

// Open replaces any existing socket with a new one dialed to url. The dial
// runs in the background; failures are retried forever.
func (s *Session) Open(url string) {
	s.mu.Lock()
	s.closed = false
	s.url = url
	s.stopRetryLocked()
	old := s.conn
	s.conn = nil
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.markAttemptLocked()
	s.mu.Unlock()

	s.closeLink(old)
	s.logger.Info("opening websocket", "url", url)
	go s.dial(gen, url)
}

// Reconnect dials the current URL again if the socket is closed. Calls that
// land inside the cooldown window of the previous attempt are dropped.
func (s *Session) Reconnect() bool {
	s.mu.Lock()
	if s.closed || s.url == "" || s.state != StateClosed {
		s.mu.Unlock()
		return false
	}
	if !s.cooldown.AllowN(s.now(), 1) {
		s.mu.Unlock()
		s.logger.Debug("reconnect suppressed by cooldown")
		return false
	}
	s.stopRetryLocked()
	s.gen++
	gen, url := s.gen, s.url
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Info("reconnecting websocket", "url", url)
	go s.dial(gen, url)
	return true
}

// Close shuts the socket down and stops reconnecting until the next Open.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopRetryLocked()
	old := s.conn
	s.conn = nil
	s.gen++
	s.state = StateClosed
	s.mu.Unlock()

	s.closeLink(old)
}

// Send queues msg for delivery. Delivery is not confirmed.
func (s *Session) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	l := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open || l == nil {
		s.logger.Warn("websocket not open, dropping message", "type", msg.Type())
		return ErrNotOpen
	}

	select {
	case <-l.done:
		return ErrNotOpen
	default:
	}
	select {
	case l.send <- data:
		return nil
	default:
		s.logger.Warn("send queue full, dropping message", "type", msg.Type())
		return ErrSendQueueFull
	}
}

// IsOpen reports whether the socket is currently open.
func (s *Session) IsOpen() bool {
	return s.State() == StateOpen
}

func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// URL returns the endpoint passed to the last Open.
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Session) dial(gen uint64, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	header, err := s.dialHeader(ctx)
	if err != nil {
		s.lost(gen, func() { s.handler.OnError(err) })
		return
	}

	ws, _, err := s.dialer.DialContext(ctx, url, header)
	if err != nil {
		err = fmt.Errorf("dial %s: %w", url, err)
		s.lost(gen, func() { s.handler.OnError(err) })
		return
	}

	l := &link{
		gen:  gen,
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.conn = l
	s.state = StateOpen
	s.mu.Unlock()

	s.logger.Info("websocket opened", "url", url)
	s.handler.OnOpen()

	go s.writePump(l)
	go s.readPump(l)
}

func (s *Session) dialHeader(ctx context.Context) (http.Header, error) {
	if s.tokens == nil {
		return nil, nil
	}
	tok, err := s.tokens.IssueToken(ctx, TokenRequest{Stage: StageHandshake})
	if err != nil {
		return nil, fmt.Errorf("issue dial token: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok.Value)
	return header, nil
}

// lost records the failure of generation gen and schedules a reconnect. Only
// the first report per generation has an effect, so overlapping close and
// error callbacks collapse into one retry.
func (s *Session) lost(gen uint64, notify func()) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.state = StateClosed
	old := s.conn
	s.conn = nil
	if s.retry == nil {
		s.retry = time.AfterFunc(s.reconnectDelay, s.retryNow)
	}
	s.mu.Unlock()

	s.closeLink(old)
	notify()
}

func (s *Session) retryNow() {
	s.mu.Lock()
	s.retry = nil
	if s.closed || s.url == "" || s.state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.markAttemptLocked()
	s.gen++
	gen, url := s.gen, s.url
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.Info("attempting to reconnect websocket", "url", url)
	s.dial(gen, url)
}

// markAttemptLocked restarts the reconnect cooldown at the current time, even
// when the previous window has not run out.
func (s *Session) markAttemptLocked() {
	s.cooldown = rate.NewLimiter(s.cooldown.Limit(), 1)
	s.cooldown.AllowN(s.now(), 1)
}

func (s *Session) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// closeLink tears a socket down. Closing an already closed socket is fine.
func (s *Session) closeLink(l *link) {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("close handshake failed", "error", err)
		}
		if err := l.ws.Close(); err != nil {
			s.logger.Debug("closing websocket", "error", err)
		}
	})
}

func (s *Session) readPump(l *link) {
	l.ws.SetReadLimit(maxMessageSize)
	l.ws.SetReadDeadline(time.Now().Add(pongWait))
	l.ws.SetPongHandler(func(string) error {
		return l.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := l.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.lost(l.gen, func() { s.handler.OnClose(closeErr.Code, closeErr.Text) })
			} else {
				s.lost(l.gen, func() { s.handler.OnError(err) })
			}
			return
		}
		l.ws.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			s.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}
		s.handler.OnMessage(data)
	}
}

func (s *Session) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-l.send:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				err = fmt.Errorf("write: %w", err)
				s.lost(l.gen, func() { s.handler.OnError(err) })
				return
			}
		case <-ticker.C:
			if err := l.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				err = fmt.Errorf("ping: %w", err)
				s.lost(l.gen, func() { s.handler.OnError(err) })
				return
			}
		case <-l.done:
			return
		}
	}
}
