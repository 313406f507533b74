// Package lifecycle implements spec.md §4.2: session birth on first
// connect, grace-windowed removal on disconnect, side changes, renames,
// and abandonment detection when a side empties out mid-game.
package lifecycle

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

// Sentinel errors.
var (
	ErrBlacklisted  = errors.New("this player has been removed from the game and may not rejoin")
	ErrUnknownSide  = errors.New("side must be white, black, or spectator")
	ErrUnknownGuest = errors.New("unknown session")
)

// Effects is the cross-component action a roster change can trigger — a
// side emptying out mid-game ends it by abandonment (spec.md §4.2).
// Implemented by internal/core.Core.
type Effects interface {
	EndGame(reason game.EndReason, winner game.Side)
}

// TeamVoteProvider exposes the in-flight team vote (if any) for a side, so
// a (re)connecting player can be synced with it immediately (spec.md §4.2,
// "send the current team_vote_update for that team"). Implemented by
// internal/voting.Service.
type TeamVoteProvider interface {
	TeamVoteSnapshot(side game.Side) wire.VoteUpdatePayload
}

// Controller owns session admission, departure, and roster bookkeeping.
type Controller struct {
	log      log.Logger
	clock    clockwork.Clock
	post     actor.Poster
	grace    time.Duration
	state    *game.State
	sessions *session.Registry
	bus      wire.Broadcaster
	effects  Effects
	votes    TeamVoteProvider
}

// New builds a Controller. grace is the disconnect grace window (spec.md
// §4.2, default 20s) before a session is permanently removed.
func New(logger log.Logger, clock clockwork.Clock, post actor.Poster, grace time.Duration, state *game.State, sessions *session.Registry, bus wire.Broadcaster, effects Effects, votes TeamVoteProvider) *Controller {
	return &Controller{
		log:      logger.Named("lifecycle"),
		clock:    clock,
		post:     post,
		grace:    grace,
		state:    state,
		sessions: sessions,
		bus:      bus,
		effects:  effects,
		votes:    votes,
	}
}

// Connect admits pid as a (re)connecting session. If pid is new, a fresh
// spectator Session is created; if pid is rejoining within its grace
// window, its pending removal timer is cancelled and it resumes its prior
// side. Blacklisted PIDs are rejected outright.
//
// Once admitted, the full state-sync sequence of spec.md §4.2 is unicast to
// this connection alone, so a client joining or reconnecting mid-game can
// reconstruct the board, clock, and any vote in progress without waiting
// for the next broadcast.
func (c *Controller) Connect(pid session.PID, requestedName string) error {
	if c.sessions.IsBlacklisted(pid) {
		return ErrBlacklisted
	}
	sess, created := c.sessions.GetOrCreate(pid, requestedName)
	if !created {
		c.sessions.CancelPendingRemoval(pid)
	}
	c.bus.Unicast(pid, wire.EvSession, wire.SessionPayload{ID: sess.PID, Name: sess.Name})
	c.bus.Unicast(pid, wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(c.state.Status)})
	c.bus.Unicast(pid, wire.EvClockUpdate, wire.ClockPayload{
		WhiteTime: c.state.Clocks.White,
		BlackTime: c.state.Clocks.Black,
	})

	if c.state.Status != game.Lobby {
		c.bus.Unicast(pid, wire.EvGameStarted, wire.GameStartedPayload{
			MoveNumber: c.state.MoveNumber,
			Side:       string(c.state.SideToMove),
			Proposals:  proposalPayloads(c.state.OrderedProposals()),
		})
		c.bus.Unicast(pid, wire.EvPositionUpdate, wire.PositionPayload{FEN: c.state.Oracle.FEN()})
		if c.state.DrawOffer != game.NoSide {
			offer := string(c.state.DrawOffer)
			c.bus.Unicast(pid, wire.EvDrawOfferUpdate, wire.DrawOfferPayload{Side: &offer})
		}
		if c.state.Status == game.Over && c.state.Terminal != nil {
			c.bus.Unicast(pid, wire.EvGameOver, wire.GameOverPayload{
				Reason: string(c.state.Terminal.Reason),
				Winner: string(c.state.Terminal.Winner),
				PGN:    c.state.Terminal.PGN,
			})
		}
	}

	if side := game.Side(sess.Side); side == game.White || side == game.Black {
		c.bus.Unicast(pid, wire.EvTeamVoteUpdate, c.votes.TeamVoteSnapshot(side))
	}

	c.broadcastRoster()
	return nil
}

func proposalPayloads(proposals []game.Proposal) []wire.ProposalPayload {
	out := make([]wire.ProposalPayload, len(proposals))
	for i, p := range proposals {
		out[i] = wire.ProposalPayload{
			PID:        p.Proposer,
			Name:       p.ProposerName,
			MoveNumber: p.MoveNumber,
			Side:       string(p.Side),
			LAN:        p.LAN,
			SAN:        p.SAN,
		}
	}
	return out
}

// Disconnect marks pid offline and arms its grace-window removal timer.
// If pid was on an active team, and that leaves the team without any
// online member mid-game, the game ends by abandonment (spec.md §4.2,
// "abandonment").
func (c *Controller) Disconnect(pid session.PID) {
	sess, ok := c.sessions.Get(pid)
	if !ok {
		return
	}
	cancel := c.clock.AfterFunc(c.grace, func() {
		c.post(func() { c.expireRemoval(pid) })
	})
	c.sessions.MarkDisconnected(pid, func() { cancel.Stop() })
	c.broadcastRoster()
	c.checkAbandonment(game.Side(sess.Side))
}

func (c *Controller) expireRemoval(pid session.PID) {
	sess, ok := c.sessions.Get(pid)
	if !ok || sess.Connected {
		return
	}
	side := game.Side(sess.Side)
	c.sessions.Remove(pid)
	if side == game.White || side == game.Black {
		c.state.RemoveFromTeam(side, pid)
	}
	c.broadcastRoster()
	c.checkAbandonment(side)
}

// checkAbandonment ends the game when side's live TeamSet has no online
// member left while a turn is in progress.
func (c *Controller) checkAbandonment(side game.Side) {
	if side != game.White && side != game.Black {
		return
	}
	if c.state.Status == game.Lobby || c.state.Status == game.Over {
		return
	}
	online := c.sessions.OnlinePIDsForSide(session.Side(side))
	for pid := range c.state.Teams[side] {
		if _, isOnline := online[pid]; isOnline {
			return
		}
	}
	c.log.Infow("side abandoned", "side", side)
	c.effects.EndGame(game.ReasonAbandonment, game.Opposite(side))
}

// SetSide moves pid between white/black/spectator. Leaving an active team
// mid-game drops any open proposal and can trigger abandonment; joining
// one adds pid to the live TeamSet only once a game is already in
// progress (spec.md §4.2 — joining during Lobby just records intent, the
// TeamSet itself is derived from the roster at kickoff).
func (c *Controller) SetSide(pid session.PID, side session.Side) error {
	if side != session.SideWhite && side != session.SideBlack && side != session.SideSpectator {
		return ErrUnknownSide
	}
	sess, ok := c.sessions.Get(pid)
	if !ok {
		return ErrUnknownGuest
	}
	oldSide := game.Side(sess.Side)
	newSide := game.Side(side)
	if oldSide == newSide {
		return nil
	}

	if c.state.Status != game.Lobby {
		if oldSide == game.White || oldSide == game.Black {
			c.state.RemoveFromTeam(oldSide, pid)
		}
		if newSide == game.White || newSide == game.Black {
			c.state.AddToTeam(newSide, pid)
		}
	}

	c.sessions.SetSide(pid, side)
	c.broadcastRoster()
	if oldSide == game.White || oldSide == game.Black {
		c.checkAbandonment(oldSide)
	}
	return nil
}

// Rename updates pid's display name.
func (c *Controller) Rename(pid session.PID, name string) error {
	if _, ok := c.sessions.Get(pid); !ok {
		return ErrUnknownGuest
	}
	c.sessions.SetName(pid, name)
	c.broadcastRoster()
	return nil
}

func (c *Controller) broadcastRoster() {
	roster := c.sessions.Snapshot()
	c.bus.Broadcast(wire.EvPlayers, wire.PlayersPayload{
		Spectators:   entries(roster.Spectators),
		WhitePlayers: entries(roster.WhitePlayers),
		BlackPlayers: entries(roster.BlackPlayers),
	})
}

func entries(sessions []*session.Session) []wire.PlayerEntry {
	out := make([]wire.PlayerEntry, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, wire.PlayerEntry{ID: s.PID, Name: s.Name, Connected: s.Connected})
	}
	return out
}
