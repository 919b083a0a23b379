package bridge

// The methods below are called by the host's event hooks on the host
// execution context.

// PlayerJoined announces p upstream and applies anything the control plane
// queued for it while it was offline: a pending kick first, then a pending
// operator change.
func (b *Bridge) PlayerJoined(p Player) {
	if reason, ok := b.takeKick(p.ID); ok {
		b.host.Disconnect(p.ID, reason)
		b.logger.Info("applied queued kick", "player", p.Name, "reason", reason)
		return
	}

	b.send(NewPlayerJoin(p))

	if op, ok := b.takeOpIntent(p.ID); ok {
		b.host.SetOperator(p.ID, op)
		b.logger.Info("applied operator change on join", "player", p.Name, "op", op)
	}
}

func (b *Bridge) PlayerLeft(p Player) {
	b.send(NewPlayerLeave(p))
}

func (b *Bridge) PlayerChat(p Player, text string) {
	b.send(NewChatMessage(p.ID, p.Name, text))
}

// PlayerDied relays a death with the damage source name and the rendered
// death message.
func (b *Bridge) PlayerDied(p Player, reason, text string) {
	b.send(NewPlayerDeath(p, reason, text))
}
