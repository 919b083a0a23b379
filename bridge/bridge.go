// Package bridge connects a game server to its Discord control plane over a
// WebSocket. It relays chat and player events upstream, applies kicks and
// operator changes sent by the control plane, and gates joins on a locally
// mirrored copy of the control plane's account links.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAuthTimeout         = 5 * time.Second
	defaultDescriptionInterval = 120 * time.Second
)

// Bridge is the control plane client for one host server.
type Bridge struct {
	host         Host
	session      *Session
	sessionCfg   SessionConfig
	mirror       *Mirror
	pending      *PendingAuthRegistry
	handlers     map[string]handlerFunc
	logger       *slog.Logger
	newCode      func() (string, error)
	authTimeout  time.Duration
	descInterval time.Duration

	// available tracks the socket being usable for authentication. It follows
	// open/close events and is re-asserted by heartbeats.
	available atomic.Bool

	mu        sync.Mutex
	opIntents map[uuid.UUID]bool
	kicks     map[uuid.UUID]string
}

// New creates a Bridge attached to host. Call Open to connect.
func New(host Host, opts ...Option) *Bridge {
	b := &Bridge{
		host:         host,
		mirror:       NewMirror(),
		pending:      NewPendingAuthRegistry(),
		logger:       slog.Default(),
		newCode:      GenerateCode,
		authTimeout:  defaultAuthTimeout,
		descInterval: defaultDescriptionInterval,
		opIntents:    make(map[uuid.UUID]bool),
		kicks:        make(map[uuid.UUID]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sessionCfg.Logger = b.logger
	b.logger = b.logger.With("component", "bridge")
	b.session = NewSession(b, b.sessionCfg)
	b.handlers = b.routes()
	return b
}

// Open connects (or reconnects) to url.
func (b *Bridge) Open(url string) {
	b.session.Open(url)
}

// Close disconnects from the control plane.
func (b *Bridge) Close() {
	b.session.Close()
	b.available.Store(false)
}

// Run pushes the player list upstream periodically until ctx is done, then
// closes the connection.
func (b *Bridge) Run(ctx context.Context) {
	defer b.Close()

	ticker := time.NewTicker(b.descInterval)
	defer ticker.Stop()

	b.host.Submit(b.RefreshChannelDescription)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("context canceled, bridge stopping")
			return
		case <-ticker.C:
			b.host.Submit(b.RefreshChannelDescription)
		}
	}
}

// Mirror exposes the cached remote configuration.
func (b *Bridge) Mirror() *Mirror {
	return b.mirror
}

// State reports the socket state.
func (b *Bridge) State() ConnectionState {
	return b.session.State()
}

// AuthAvailable reports whether the control plane can currently be reached.
func (b *Bridge) AuthAvailable() bool {
	return b.available.Load() && b.session.IsOpen()
}

func (b *Bridge) OnOpen() {
	b.available.Store(true)
	b.logger.Info("control plane connected")
}

func (b *Bridge) OnMessage(data []byte) {
	b.dispatch(data)
}

func (b *Bridge) OnClose(code int, reason string) {
	b.available.Store(false)
	b.logger.Warn("control plane closed the connection", "code", code, "reason", reason)
}

func (b *Bridge) OnError(err error) {
	b.available.Store(false)
	b.logger.Error("control plane connection error", "error", err)
}

// VerifyRemote asks the control plane for a verdict on id and waits for it.
// It blocks for up to the auth timeout and must not be called from the host
// execution context; joins go through CheckAuthentication instead.
func (b *Bridge) VerifyRemote(ctx context.Context, id uuid.UUID) (AuthResult, error) {
	if !b.AuthAvailable() {
		b.session.Reconnect()
		return AuthResult{Code: CodeUnavailable}, nil
	}

	req, err := b.pending.Register(id)
	if err != nil {
		return AuthResult{}, err
	}
	if err := b.session.Send(NewAuthenticationRequest(id)); err != nil {
		b.pending.Resolve(id, false, CodeUnavailable)
		return AuthResult{Code: CodeUnavailable}, nil
	}
	return b.pending.Await(ctx, req, b.authTimeout), nil
}

// RefreshChannelDescription pushes the online player list upstream. It reads
// host state and so runs on the host execution context.
func (b *Bridge) RefreshChannelDescription() {
	if !b.AuthAvailable() {
		b.logger.Debug("control plane unavailable, skipping channel description")
		return
	}
	text := ChannelDescription(b.host.PlayerCount(), b.host.Players())
	if err := b.session.Send(NewChannelDescriptionUpdate(text)); err != nil {
		b.logger.Warn("failed to update channel description", "error", err)
		return
	}
	b.logger.Debug("updated channel description", "text", text)
}

// ChannelDescription formats the player list shown in the Discord channel.
func ChannelDescription(count int, players []Player) string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%d players online:\n%s", count, strings.Join(names, "\n"))
}

// send delivers an outbound event when the control plane is reachable.
func (b *Bridge) send(msg Message) {
	if !b.AuthAvailable() {
		return
	}
	if err := b.session.Send(msg); err != nil && !errors.Is(err, ErrNotOpen) {
		b.logger.Warn("failed to send event", "type", msg.Type(), "error", err)
	}
}

func (b *Bridge) setOpIntent(id uuid.UUID, op bool) {
	b.mu.Lock()
	b.opIntents[id] = op
	b.mu.Unlock()
}

func (b *Bridge) takeOpIntent(id uuid.UUID) (op, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok = b.opIntents[id]
	delete(b.opIntents, id)
	return op, ok
}

// PendingOpIntent reports the operator change waiting for id's next join.
func (b *Bridge) PendingOpIntent(id uuid.UUID) (op, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok = b.opIntents[id]
	return op, ok
}

func (b *Bridge) queueKick(id uuid.UUID, reason string) {
	b.mu.Lock()
	b.kicks[id] = reason
	b.mu.Unlock()
}

func (b *Bridge) takeKick(id uuid.UUID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reason, ok := b.kicks[id]
	delete(b.kicks, id)
	return reason, ok
}

// PendingKick reports the kick waiting for id's next join.
func (b *Bridge) PendingKick(id uuid.UUID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reason, ok := b.kicks[id]
	return reason, ok
}
