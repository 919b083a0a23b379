package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRemoteAccepted(t *testing.T) {
	b, server := newConnectedBridge(t, newFakeHost())
	id := uuid.New()

	type outcome struct {
		res AuthResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := b.VerifyRemote(context.Background(), id)
		done <- outcome{res, err}
	}()

	req := readUntil(t, server, TypeAuthRequest)
	got, err := req.UUID("uuid")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	writeJSON(t, server, map[string]any{"type": TypeAuthAccept, "uuid": id.String(), "op": false})

	out := waitFor(t, done, "verdict")
	require.NoError(t, out.err)
	assert.True(t, out.res.Accepted)

	op, ok := b.PendingOpIntent(id)
	assert.True(t, ok)
	assert.False(t, op)
}

func TestVerifyRemoteDenied(t *testing.T) {
	b, server := newConnectedBridge(t, newFakeHost())
	id := uuid.New()

	done := make(chan AuthResult, 1)
	go func() {
		res, _ := b.VerifyRemote(context.Background(), id)
		done <- res
	}()

	readUntil(t, server, TypeAuthRequest)
	writeJSON(t, server, map[string]any{"type": TypeAuthDeny, "uuid": id.String(), "code": "not.linked"})

	res := waitFor(t, done, "verdict")
	assert.False(t, res.Accepted)
	assert.Equal(t, "not.linked", res.Code)
}

func TestVerifyRemoteTimesOut(t *testing.T) {
	b, _ := newConnectedBridge(t, newFakeHost(), WithAuthTimeout(50*time.Millisecond))

	res, err := b.VerifyRemote(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, CodeTimeout, res.Code)
}

func TestVerifyRemoteUnavailable(t *testing.T) {
	b := newOfflineBridge(t, newFakeHost())

	res, err := b.VerifyRemote(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, CodeUnavailable, res.Code)
}

func TestChannelDescription(t *testing.T) {
	assert.Equal(t, "0 players online:\n", ChannelDescription(0, nil))
	assert.Equal(t, "2 players online:\nSteve\nAlex", ChannelDescription(2, []Player{
		{ID: uuid.New(), Name: "Steve"},
		{ID: uuid.New(), Name: "Alex"},
	}))
}

func TestRefreshChannelDescription(t *testing.T) {
	steve := Player{ID: uuid.New(), Name: "Steve"}
	b, server := newConnectedBridge(t, newFakeHost(steve))

	b.RefreshChannelDescription()

	msg := readUntil(t, server, TypeChannelDescription)
	assert.Equal(t, "1 players online:\nSteve", msg.StringOr("text", ""))
}

func TestRunPushesDescriptionUntilCanceled(t *testing.T) {
	b, server := newConnectedBridge(t, newFakeHost(), WithChannelDescriptionInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()

	readUntil(t, server, TypeChannelDescription)
	readUntil(t, server, TypeChannelDescription)

	cancel()
	waitFor(t, stopped, "run to return")
	assert.False(t, b.AuthAvailable())
}

func TestRelaysPlayerEvents(t *testing.T) {
	p := Player{ID: uuid.New(), Name: "Steve"}
	b, server := newConnectedBridge(t, newFakeHost(p))

	b.PlayerJoined(p)
	join := readUntil(t, server, TypePlayerJoin)
	assert.Equal(t, "Steve", join.StringOr("player", ""))
	assert.Equal(t, p.ID.String(), join.StringOr("uuid", ""))

	b.PlayerChat(p, "hello discord")
	chat := readUntil(t, server, TypeChatMessage)
	assert.Equal(t, "hello discord", chat.StringOr("message", ""))
	assert.Equal(t, "Steve", chat.StringOr("sender", ""))

	b.PlayerDied(p, "lava", "Steve tried to swim in lava")
	death := readUntil(t, server, TypePlayerDeath)
	assert.Equal(t, "lava", death.StringOr("reason", ""))
	assert.Equal(t, "Steve tried to swim in lava", death.StringOr("message", ""))

	b.PlayerLeft(p)
	leave := readUntil(t, server, TypePlayerLeave)
	assert.Equal(t, p.ID.String(), leave.StringOr("uuid", ""))
}

func TestRelaysAreDroppedWhileUnavailable(t *testing.T) {
	p := Player{ID: uuid.New(), Name: "Steve"}
	host := newFakeHost()
	b := newOfflineBridge(t, host)
	b.setOpIntent(p.ID, true)

	b.PlayerJoined(p)
	b.PlayerChat(p, "anyone there?")
	b.PlayerLeft(p)

	assert.Equal(t, []opChange{{p.ID, true}}, host.ops(), "operator intents apply without the control plane")
}
