package bridge

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	defaultKickReason = "kicked by remote server"
	defaultSender     = "Unknown"
	deniedPrefix      = "Authentication denied: "
)

type handlerFunc func(msg Message) error

func (b *Bridge) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		TypeAuthAccept:   b.handleAuthAccept,
		TypeAuthDeny:     b.handleAuthDeny,
		TypeKick:         b.handleKick,
		TypeOp:           func(msg Message) error { return b.handleOperator(msg, true) },
		TypeDeop:         func(msg Message) error { return b.handleOperator(msg, false) },
		TypeChatMessage:  b.handleChat,
		TypeConfigUpdate: b.handleConfigUpdate,
		TypeHeartbeat:    b.handleHeartbeat,
	}
}

// dispatch decodes one inbound frame and runs its handler. Nothing here may
// stop the read loop: bad input is logged and dropped.
func (b *Bridge) dispatch(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrMissingType) {
			return
		}
		b.logger.Warn("dropping undecodable message", "error", err)
		return
	}

	handler, ok := b.handlers[msg.Type()]
	if !ok {
		b.logger.Warn("unhandled message type", "type", msg.Type())
		return
	}
	if err := handler(msg); err != nil {
		b.logger.Warn("dropping message", "type", msg.Type(), "error", err)
	}
}

func (b *Bridge) handleAuthAccept(msg Message) error {
	id, err := msg.UUID("uuid")
	if err != nil {
		return err
	}
	b.pending.Resolve(id, true, "")
	op, hasOp := msg.Bool("op")
	if hasOp {
		b.setOpIntent(id, op)
	}
	b.logger.Info("authentication accepted", "uuid", id, "op", op)
	return nil
}

func (b *Bridge) handleAuthDeny(msg Message) error {
	id, err := msg.UUID("uuid")
	if err != nil {
		return err
	}
	code := msg.StringOr("code", CodeDenied)
	b.pending.Resolve(id, false, code)
	b.host.Submit(func() { b.kickOrQueue(id, deniedPrefix+code) })
	return nil
}

func (b *Bridge) handleKick(msg Message) error {
	id, err := msg.UUID("uuid")
	if err != nil {
		return err
	}
	reason := msg.StringOr("reason", defaultKickReason)
	b.host.Submit(func() { b.kickOrQueue(id, reason) })
	return nil
}

// kickOrQueue runs on the host context.
func (b *Bridge) kickOrQueue(id uuid.UUID, reason string) {
	if p, ok := b.host.Player(id); ok {
		b.host.Disconnect(id, reason)
		b.logger.Info("player disconnected by control plane", "player", p.Name, "reason", reason)
		return
	}
	b.queueKick(id, reason)
	b.logger.Info("queued kick", "uuid", id, "reason", reason)
}

func (b *Bridge) handleOperator(msg Message, op bool) error {
	id, err := msg.UUID("uuid")
	if err != nil {
		return err
	}
	b.host.Submit(func() {
		p, ok := b.host.Player(id)
		if !ok {
			return
		}
		b.host.SetOperator(id, op)
		b.logger.Info("operator changed by control plane", "player", p.Name, "op", op)
	})
	return nil
}

func (b *Bridge) handleChat(msg Message) error {
	text, ok := msg.String("message")
	if !ok {
		return fmt.Errorf("%s: missing %q", msg.Type(), "message")
	}
	line := DiscordChatLine(msg.StringOr("sender", defaultSender), text, msg.StringOr("color", ""))
	b.host.Submit(func() { b.host.Broadcast(line) })
	return nil
}

func (b *Bridge) handleConfigUpdate(msg Message) error {
	raw, ok := msg.Object("config")
	if !ok {
		return fmt.Errorf("%s: missing %q object", msg.Type(), "config")
	}
	b.mirror.Replace(NewRemoteConfig(raw))
	b.logger.Info("received remote config update", "sections", len(raw))
	return nil
}

func (b *Bridge) handleHeartbeat(Message) error {
	b.available.Store(true)
	return nil
}
