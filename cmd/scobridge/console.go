package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/thenatally/scoscmp-discord-intergration/bridge"
)

// consoleHost is a stand-in game server driven from stdin. All player state
// is owned by the Run goroutine; everything else goes through Submit.
type consoleHost struct {
	out   *termenv.Output
	tasks chan func()
	done  chan struct{}

	gate    *bridge.Bridge
	players map[uuid.UUID]bridge.Player
	ops     map[uuid.UUID]bool
}

func newConsoleHost(w io.Writer) *consoleHost {
	return &consoleHost{
		out:     termenv.NewOutput(w),
		tasks:   make(chan func(), 256),
		done:    make(chan struct{}),
		players: make(map[uuid.UUID]bridge.Player),
		ops:     make(map[uuid.UUID]bool),
	}
}

// attach hands the join hook its bridge.
func (h *consoleHost) attach(b *bridge.Bridge) {
	h.gate = b
}

func (h *consoleHost) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-h.tasks:
			fn()
		}
	}
}

func (h *consoleHost) Submit(fn func()) {
	select {
	case h.tasks <- fn:
	case <-h.done:
	}
}

func (h *consoleHost) Player(id uuid.UUID) (bridge.Player, bool) {
	p, ok := h.players[id]
	return p, ok
}

func (h *consoleHost) Disconnect(id uuid.UUID, reason string) {
	p, ok := h.players[id]
	if !ok {
		return
	}
	delete(h.players, id)
	fmt.Fprintf(h.out, "%s was disconnected: %s\n", p.Name, reason)
	h.gate.PlayerLeft(p)
}

func (h *consoleHost) SetOperator(id uuid.UUID, op bool) {
	if op {
		h.ops[id] = true
	} else {
		delete(h.ops, id)
	}
	if p, ok := h.players[id]; ok {
		fmt.Fprintf(h.out, "%s operator: %t\n", p.Name, op)
	}
}

func (h *consoleHost) Broadcast(line bridge.Line) {
	var b strings.Builder
	for _, seg := range line {
		b.WriteString(h.out.String(seg.Text).Foreground(h.out.Color(seg.Color.Hex())).String())
	}
	fmt.Fprintln(h.out, b.String())
}

func (h *consoleHost) Players() []bridge.Player {
	out := make([]bridge.Player, 0, len(h.players))
	for _, p := range h.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (h *consoleHost) PlayerCount() int {
	return len(h.players)
}

// readCommands feeds stdin lines to the host context until r is exhausted.
func (h *consoleHost) readCommands(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		h.Submit(func() { h.command(ctx, line) })
	}
}

// offlineID derives the identity an offline-mode server assigns to name.
func offlineID(name string) uuid.UUID {
	return uuid.NewMD5(uuid.Nil, []byte("OfflinePlayer:"+name))
}

func (h *consoleHost) byName(name string) (bridge.Player, bool) {
	for _, p := range h.players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return bridge.Player{}, false
}

func (h *consoleHost) command(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "join":
		if len(args) < 1 {
			fmt.Fprintln(h.out, "usage: join <name> [uuid]")
			return
		}
		p := bridge.Player{ID: offlineID(args[0]), Name: args[0]}
		if len(args) > 1 {
			id, err := uuid.Parse(args[1])
			if err != nil {
				fmt.Fprintf(h.out, "invalid uuid: %v\n", err)
				return
			}
			p.ID = id
		}
		if _, ok := h.players[p.ID]; ok {
			fmt.Fprintf(h.out, "%s is already online\n", p.Name)
			return
		}
		verdict := h.gate.CheckAuthentication(p.ID)
		if !verdict.Allowed() {
			fmt.Fprintf(h.out, "%s (%s) refused:\n%s\n", p.Name, p.ID, bridge.JoinMessage(verdict))
			return
		}
		h.players[p.ID] = p
		fmt.Fprintf(h.out, "%s joined the game\n", p.Name)
		h.gate.PlayerJoined(p)

	case "leave":
		p, ok := h.requirePlayer(args)
		if !ok {
			return
		}
		delete(h.players, p.ID)
		fmt.Fprintf(h.out, "%s left the game\n", p.Name)
		h.gate.PlayerLeft(p)

	case "say":
		p, ok := h.requirePlayer(args)
		if !ok || len(args) < 2 {
			return
		}
		text := strings.Join(args[1:], " ")
		fmt.Fprintf(h.out, "<%s> %s\n", p.Name, text)
		h.gate.PlayerChat(p, text)

	case "die":
		p, ok := h.requirePlayer(args)
		if !ok {
			return
		}
		reason := "generic"
		if len(args) > 1 {
			reason = args[1]
		}
		text := fmt.Sprintf("%s died", p.Name)
		if len(args) > 2 {
			text = strings.Join(args[2:], " ")
		}
		fmt.Fprintln(h.out, text)
		h.gate.PlayerDied(p, reason, text)

	case "list":
		fmt.Fprintln(h.out, bridge.ChannelDescription(h.PlayerCount(), h.Players()))

	case "verify":
		if len(args) < 1 {
			fmt.Fprintln(h.out, "usage: verify <name>")
			return
		}
		name, id := args[0], offlineID(args[0])
		// VerifyRemote blocks, keep it off the host context.
		go func() {
			res, err := h.gate.VerifyRemote(ctx, id)
			h.Submit(func() {
				switch {
				case err != nil:
					fmt.Fprintf(h.out, "verify %s: %v\n", name, err)
				case res.Accepted:
					fmt.Fprintf(h.out, "verify %s: accepted\n", name)
				default:
					fmt.Fprintf(h.out, "verify %s: %s\n", name, res.Code)
				}
			})
		}()

	default:
		fmt.Fprintf(h.out, "unknown command %q (join, leave, say, die, list, verify)\n", cmd)
	}
}

func (h *consoleHost) requirePlayer(args []string) (bridge.Player, bool) {
	if len(args) < 1 {
		fmt.Fprintln(h.out, "missing player name")
		return bridge.Player{}, false
	}
	p, ok := h.byName(args[0])
	if !ok {
		fmt.Fprintf(h.out, "%s is not online\n", args[0])
	}
	return p, ok
}
