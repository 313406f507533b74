package lifecycle_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/lifecycle"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

type fakeBus struct {
	unicasts []string
	events   []string
}

func (b *fakeBus) Unicast(_ session.PID, event string, _ interface{}) { b.unicasts = append(b.unicasts, event) }
func (b *fakeBus) TeamCast(session.Side, string, interface{})        {}
func (b *fakeBus) Broadcast(event string, _ interface{})             { b.events = append(b.events, event) }
func (b *fakeBus) Disconnect(session.PID)                            {}

func (b *fakeBus) saw(event string) bool {
	for _, e := range b.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeEffects struct {
	ended  bool
	reason game.EndReason
	winner game.Side
}

func (f *fakeEffects) EndGame(reason game.EndReason, winner game.Side) {
	f.ended = true
	f.reason = reason
	f.winner = winner
}

type fakeVotes struct{}

func (fakeVotes) TeamVoteSnapshot(game.Side) wire.VoteUpdatePayload {
	return wire.VoteUpdatePayload{Active: false}
}

func newController(t *testing.T) (*lifecycle.Controller, *session.Registry, *game.State, *fakeBus, *fakeEffects, clockwork.FakeClock) {
	t.Helper()
	reg := session.NewRegistry()
	st := game.NewState(600)
	bus := &fakeBus{}
	effects := &fakeEffects{}
	clock := clockwork.NewFakeClock()
	var post actor.Poster = func(fn func()) { fn() }
	c := lifecycle.New(log.DefaultLogger(), clock, post, 30*time.Second, st, reg, bus, effects, fakeVotes{})
	return c, reg, st, bus, effects, clock
}

func TestConnectCreatesSpectatorAndSendsSession(t *testing.T) {
	c, _, _, bus, _, _ := newController(t)
	pid := session.NewPID()

	require.NoError(t, c.Connect(pid, "Alice"))
	assert.Contains(t, bus.unicasts, wire.EvSession)
	assert.True(t, bus.saw(wire.EvPlayers))
}

func TestConnectRejectsBlacklisted(t *testing.T) {
	c, reg, _, _, _, _ := newController(t)
	pid := session.NewPID()
	reg.Blacklist(pid)

	err := c.Connect(pid, "Bob")
	assert.ErrorIs(t, err, lifecycle.ErrBlacklisted)
}

func TestDisconnectThenReconnectCancelsRemoval(t *testing.T) {
	c, reg, _, _, _, clock := newController(t)
	pid := session.NewPID()
	require.NoError(t, c.Connect(pid, "Alice"))

	c.Disconnect(pid)
	sess, _ := reg.Get(pid)
	assert.False(t, sess.Connected)

	require.NoError(t, c.Connect(pid, "Alice"))
	clock.Advance(31 * time.Second)
	sess, ok := reg.Get(pid)
	require.True(t, ok, "session should survive because reconnect cancelled the removal timer")
	assert.True(t, sess.Connected)
}

func TestDisconnectExpiresAfterGraceWindow(t *testing.T) {
	c, reg, _, _, _, clock := newController(t)
	pid := session.NewPID()
	require.NoError(t, c.Connect(pid, "Alice"))
	c.Disconnect(pid)

	clock.BlockUntil(1)
	clock.Advance(31 * time.Second)

	_, ok := reg.Get(pid)
	assert.False(t, ok)
}

func TestAbandonmentEndsGameWhenTeamGoesFullyOffline(t *testing.T) {
	c, reg, st, _, effects, clock := newController(t)
	pid := session.NewPID()
	require.NoError(t, c.Connect(pid, "Alice"))
	require.NoError(t, c.SetSide(pid, session.SideWhite))
	st.Status = game.AwaitingProposals
	st.AddToTeam(game.White, pid)

	c.Disconnect(pid)
	clock.BlockUntil(1)
	clock.Advance(31 * time.Second)

	assert.True(t, effects.ended)
	assert.Equal(t, game.ReasonAbandonment, effects.reason)
	assert.Equal(t, game.Black, effects.winner)
}

func TestSetSideUpdatesLiveTeamSetDuringActiveGame(t *testing.T) {
	c, reg, st, _, _, _ := newController(t)
	st.Status = game.AwaitingProposals
	pid := session.NewPID()
	require.NoError(t, c.Connect(pid, "Alice"))

	require.NoError(t, c.SetSide(pid, session.SideWhite))
	assert.True(t, st.OnTeam(game.White, pid))

	require.NoError(t, c.SetSide(pid, session.SideBlack))
	assert.False(t, st.OnTeam(game.White, pid))
	assert.True(t, st.OnTeam(game.Black, pid))

	sess, _ := reg.Get(pid)
	assert.Equal(t, session.SideBlack, sess.Side)
}
