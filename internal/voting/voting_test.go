package voting_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/voting"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

type recordedCast struct {
	event   string
	payload interface{}
}

type fakeBus struct {
	broadcasts  []recordedCast
	disconnects []session.PID
}

func (b *fakeBus) Unicast(session.PID, string, interface{})    {}
func (b *fakeBus) TeamCast(session.Side, string, interface{}) {}
func (b *fakeBus) Broadcast(event string, payload interface{}) {
	b.broadcasts = append(b.broadcasts, recordedCast{event, payload})
}
func (b *fakeBus) Disconnect(pid session.PID) { b.disconnects = append(b.disconnects, pid) }

type fakeEffects struct {
	endedReason   game.EndReason
	endedWinner   game.Side
	ended         bool
	resetCalled   bool
	rechecked     bool
}

func (f *fakeEffects) EndGame(reason game.EndReason, winner game.Side) {
	f.ended = true
	f.endedReason = reason
	f.endedWinner = winner
}
func (f *fakeEffects) ResetGame()                  { f.resetCalled = true }
func (f *fakeEffects) RecheckAfterRosterChange()   { f.rechecked = true }

func newHarness(t *testing.T) (*voting.Service, *session.Registry, *game.State, *fakeBus, *fakeEffects, clockwork.FakeClock) {
	t.Helper()
	reg := session.NewRegistry()
	st := game.NewState(600)
	st.Status = game.AwaitingProposals
	bus := &fakeBus{}
	effects := &fakeEffects{}
	clock := clockwork.NewFakeClock()
	var post actor.Poster = func(fn func()) { fn() }
	svc := voting.NewService(log.DefaultLogger(), clock, post, 20*time.Second, st, reg, bus, effects)
	return svc, reg, st, bus, effects, clock
}

func join(reg *session.Registry, side session.Side, st *game.State) session.PID {
	pid := session.NewPID()
	reg.GetOrCreate(pid, "p")
	reg.SetSide(pid, side)
	if side == session.SideWhite || side == session.SideBlack {
		st.AddToTeam(game.Side(side), pid)
	}
	return pid
}

func TestStartTeamVoteLoneMemberAutoPasses(t *testing.T) {
	svc, reg, st, _, effects, _ := newHarness(t)
	white := join(reg, session.SideWhite, st)

	err := svc.StartTeamVote(white, voting.KindResign)
	require.NoError(t, err)
	assert.True(t, effects.ended)
	assert.Equal(t, game.ReasonResignation, effects.endedReason)
	assert.Equal(t, game.Black, effects.endedWinner)
}

func TestVoteTeamRequiresUnanimity(t *testing.T) {
	svc, reg, st, _, effects, _ := newHarness(t)
	a := join(reg, session.SideWhite, st)
	b := join(reg, session.SideWhite, st)
	c := join(reg, session.SideWhite, st)

	require.NoError(t, svc.StartTeamVote(a, voting.KindResign))
	assert.False(t, effects.ended, "vote should not resolve until every teammate agrees")

	require.NoError(t, svc.VoteTeam(b, game.White, voting.Yes))
	assert.False(t, effects.ended, "still missing c's ballot")

	require.NoError(t, svc.VoteTeam(c, game.White, voting.Yes))
	assert.True(t, effects.ended)
}

func TestVoteTeamShortCircuitsOnImpossibleMajority(t *testing.T) {
	svc, reg, st, bus, effects, _ := newHarness(t)
	a := join(reg, session.SideWhite, st)
	b := join(reg, session.SideWhite, st)
	c := join(reg, session.SideWhite, st)

	require.NoError(t, svc.StartTeamVote(a, voting.KindResign))
	require.NoError(t, svc.VoteTeam(b, game.White, voting.No))
	require.ErrorIs(t, svc.VoteTeam(c, game.White, voting.No), voting.ErrNoActiveVote, "a single no already closed the vote")

	assert.False(t, effects.ended)
	found := false
	for _, c := range bus.broadcasts {
		if c.event == wire.EvTeamVoteUpdate {
			if p, ok := c.payload.(wire.VoteUpdatePayload); ok && !p.Active {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a closing team_vote_update broadcast")
}

func TestOfferDrawChainsIntoSystemAcceptDrawVote(t *testing.T) {
	svc, reg, st, _, effects, _ := newHarness(t)
	w := join(reg, session.SideWhite, st)
	b1 := join(reg, session.SideBlack, st)

	require.NoError(t, svc.StartTeamVote(w, voting.KindOfferDraw))
	assert.Equal(t, game.White, st.DrawOffer)

	require.NoError(t, svc.VoteTeam(b1, game.Black, voting.Yes))
	assert.True(t, effects.ended)
	assert.Equal(t, game.ReasonDrawAgreement, effects.endedReason)
	assert.Equal(t, game.NoSide, st.DrawOffer)
}

func TestAcceptDrawFailureClearsDrawOffer(t *testing.T) {
	svc, reg, st, bus, effects, _ := newHarness(t)
	w := join(reg, session.SideWhite, st)
	b1 := join(reg, session.SideBlack, st)
	b2 := join(reg, session.SideBlack, st)

	require.NoError(t, svc.StartTeamVote(w, voting.KindOfferDraw))
	assert.Equal(t, game.White, st.DrawOffer)

	require.NoError(t, svc.VoteTeam(b1, game.Black, voting.No))
	assert.False(t, effects.ended)
	assert.Equal(t, game.NoSide, st.DrawOffer, "a failed accept_draw must release the offer")

	cleared := false
	for _, c := range bus.broadcasts {
		if c.event == wire.EvDrawOfferUpdate {
			if p, ok := c.payload.(wire.DrawOfferPayload); ok && p.Side == nil {
				cleared = true
			}
		}
	}
	assert.True(t, cleared, "expected a draw_offer_update(none) broadcast")
	_ = b2
}

func TestKickVotePassBroadcastsSystemChat(t *testing.T) {
	svc, reg, st, bus, _, _ := newHarness(t)
	initiator := join(reg, session.SideWhite, st)
	target := join(reg, session.SideBlack, st)
	voter := join(reg, session.SideSpectator, st)

	require.NoError(t, svc.StartKickVote(initiator, target))
	require.NoError(t, svc.VoteKick(voter, voting.Yes))

	found := false
	for _, c := range bus.broadcasts {
		if c.event == wire.EvChatMessage {
			if p, ok := c.payload.(wire.ChatPayload); ok && p.System {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a system chat message announcing the kick")
}

func TestResetVoteFailureBroadcastsSystemChat(t *testing.T) {
	svc, reg, st, bus, effects, _ := newHarness(t)
	a := join(reg, session.SideWhite, st)
	v1 := join(reg, session.SideBlack, st)
	v2 := join(reg, session.SideBlack, st)

	require.NoError(t, svc.StartResetVote(a))
	require.NoError(t, svc.VoteReset(v1, voting.No))
	require.NoError(t, svc.VoteReset(v2, voting.No))

	assert.False(t, effects.resetCalled)
	found := false
	for _, c := range bus.broadcasts {
		if c.event == wire.EvChatMessage {
			if p, ok := c.payload.(wire.ChatPayload); ok && p.System {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a system chat message announcing the failed reset vote")
}

func TestVoteTeamRejectsDoubleVote(t *testing.T) {
	svc, reg, st, _, _, _ := newHarness(t)
	a := join(reg, session.SideWhite, st)
	join(reg, session.SideWhite, st)
	join(reg, session.SideWhite, st)

	require.NoError(t, svc.StartTeamVote(a, voting.KindResign))
	err := svc.VoteTeam(a, game.White, voting.Yes)
	assert.ErrorIs(t, err, voting.ErrAlreadyVoted)
}

func TestKickVoteExcludesTargetAndAppliesOnPass(t *testing.T) {
	svc, reg, st, bus, effects, _ := newHarness(t)
	initiator := join(reg, session.SideWhite, st)
	target := join(reg, session.SideBlack, st)
	voter := join(reg, session.SideSpectator, st)

	require.NoError(t, svc.StartKickVote(initiator, target))
	err := svc.VoteKick(target, voting.Yes)
	assert.ErrorIs(t, err, voting.ErrNotEligible)

	require.NoError(t, svc.VoteKick(voter, voting.Yes))
	assert.True(t, effects.rechecked)
	assert.Contains(t, bus.disconnects, target)
}

func TestResetVoteDisallowedInLobby(t *testing.T) {
	svc, reg, st, _, _, _ := newHarness(t)
	st.Status = game.Lobby
	initiator := join(reg, session.SideSpectator, st)

	err := svc.StartResetVote(initiator)
	assert.ErrorIs(t, err, voting.ErrResetNotAllowedInLobby)
}

func TestTeamVoteExpiresAtDeadlineWithoutMajority(t *testing.T) {
	svc, reg, st, bus, effects, clock := newHarness(t)
	a := join(reg, session.SideWhite, st)
	join(reg, session.SideWhite, st)
	join(reg, session.SideWhite, st)
	join(reg, session.SideWhite, st)

	require.NoError(t, svc.StartTeamVote(a, voting.KindResign))
	clock.BlockUntil(1)
	clock.Advance(21 * time.Second)

	assert.False(t, effects.ended)
	closed := false
	for _, c := range bus.broadcasts {
		if c.event == wire.EvTeamVoteUpdate {
			if p, ok := c.payload.(wire.VoteUpdatePayload); ok && !p.Active {
				closed = true
			}
		}
	}
	assert.True(t, closed)
}
