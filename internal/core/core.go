// Package core wires every controller from spec.md §4 onto a single
// serialized event loop (spec.md §5) and is the sole implementer of the
// cross-cutting Effects interfaces (turn.Effects, lifecycle.Effects,
// clockservice.Effects, voting.Effects). Every mutation of game.State, by
// this package or by the controllers it owns, runs on that event loop.
package core

import (
	"github.com/jonboulle/clockwork"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/clockservice"
	"github.com/teamchess/server/internal/config"
	"github.com/teamchess/server/internal/engine"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/httpapi"
	"github.com/teamchess/server/internal/lifecycle"
	"github.com/teamchess/server/internal/metrics"
	"github.com/teamchess/server/internal/oracle"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/transport"
	"github.com/teamchess/server/internal/turn"
	"github.com/teamchess/server/internal/voting"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

// Core is the single-goroutine actor that owns game.State and every
// controller acting on it. All external input — websocket messages,
// ticker fires, vote deadlines, disconnect timers, engine replies — is
// funneled through jobs so that state mutation is always sequential,
// per spec.md §5.
type Core struct {
	log   log.Logger
	cfg   config.Config
	clock clockwork.Clock

	sessions *session.Registry
	state    *game.State
	bus      *bus
	gateway  *transport.Gateway
	engine   engine.Adapter

	turnCtl      *turn.Controller
	lifecycleCtl *lifecycle.Controller
	clockSvc     *clockservice.Service
	votingSvc    *voting.Service

	jobs chan func()
	quit chan struct{}

	chatHistory []wire.ChatPayload
}

// New assembles a Core and every controller it owns, wiring the Engine
// Adapter, Session Registry, and Game State the way spec.md §3's
// "Ownership" section lays out. gatewayFactory receives Core's Poster and
// must return a *transport.Gateway that forwards connection events through
// it — main wires this as transport.New(logger, core.Post) — because the
// Gateway needs a live Poster before Core itself fully exists.
func New(logger log.Logger, cfg config.Config, clock clockwork.Clock, eng engine.Adapter, gatewayFactory func(actor.Poster) *transport.Gateway) *Core {
	sessions := session.NewRegistry()
	state := game.NewState(int(cfg.InitialClock.Seconds()))

	c := &Core{
		log:      logger.Named("core"),
		cfg:      cfg,
		clock:    clock,
		sessions: sessions,
		state:    state,
		jobs:     make(chan func(), 256),
		quit:     make(chan struct{}),
	}

	var post actor.Poster = c.Post
	gateway := gatewayFactory(post)
	b := newBus(gateway, sessions)
	c.bus = b
	c.gateway = gateway
	c.engine = eng

	c.turnCtl = turn.New(logger, state, sessions, b, eng, c, turn.Config{
		LowTimeCutoffSeconds: int(cfg.LowTimeCutoff.Seconds()),
		LowTimeBonusSeconds:  int(cfg.LowTimeBonus.Seconds()),
		EngineTimeout:        cfg.EngineTimeout,
	})
	c.votingSvc = voting.NewService(logger, clock, post, cfg.VoteDuration, state, sessions, b, c)
	c.lifecycleCtl = lifecycle.New(logger, clock, post, cfg.DisconnectGrace, state, sessions, b, c, c.votingSvc)
	c.clockSvc = clockservice.New(logger, clock, post, state, b, c)

	gateway.SetDispatcher(c)
	return c
}

// Post schedules fn to run on Core's event loop. Safe to call from any
// goroutine.
func (c *Core) Post(fn func()) {
	select {
	case c.jobs <- fn:
	case <-c.quit:
	}
}

// Run drives the event loop until Stop is called. Intended to be run in
// its own goroutine from main.
func (c *Core) Run() {
	c.clockSvc.Start()
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.quit:
			c.clockSvc.Stop()
			return
		}
	}
}

// Stop terminates the event loop and the owned Engine Adapter subprocess.
func (c *Core) Stop() {
	close(c.quit)
	c.engine.Quit()
}

// Status implements httpapi.StatusProvider. The snapshot is taken on the
// event loop; once the loop has stopped, a zero snapshot is returned.
func (c *Core) Status() httpapi.StatusSnapshot {
	out := make(chan httpapi.StatusSnapshot, 1)
	c.Post(func() { out <- c.statusSnapshot() })
	select {
	case snap := <-out:
		return snap
	case <-c.quit:
		return httpapi.StatusSnapshot{}
	}
}

func (c *Core) statusSnapshot() httpapi.StatusSnapshot {
	return httpapi.StatusSnapshot{
		GameStatus:    c.state.Status,
		MoveNumber:    c.state.MoveNumber,
		SideToMove:    c.state.SideToMove,
		WhiteTime:     c.state.Clocks.White,
		BlackTime:     c.state.Clocks.Black,
		ConnectedPIDs: len(c.sessions.AllOnlinePIDs("")),
	}
}

// EndGame implements turn.Effects, lifecycle.Effects, clockservice.Effects,
// and part of voting.Effects: it is the single place a game transitions
// into Over, so metrics and vote cancellation happen exactly once.
func (c *Core) EndGame(reason game.EndReason, winner game.Side) {
	if c.state.Status == game.Over {
		return
	}
	pgn := c.state.Oracle.PGN()
	c.state.Status = game.Over
	c.state.Terminal = &game.TerminalInfo{Reason: reason, Winner: winner, PGN: pgn}
	c.votingSvc.CancelAll()
	c.bus.Broadcast(wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(game.Over)})
	c.bus.Broadcast(wire.EvGameOver, wire.GameOverPayload{
		Reason: string(reason),
		Winner: string(winner),
		PGN:    pgn,
	})
	metrics.GamesCompletedTotal.WithLabelValues(string(reason)).Inc()
}

// ResetGame implements voting.Effects: returns to Lobby with a fresh
// oracle and full clocks, per spec.md §4.4 "Reset vote / On pass", which
// requires broadcasting game_reset, clock_update, and a system chat
// message in addition to the status transition.
func (c *Core) ResetGame() {
	c.votingSvc.CancelAll()
	c.state.Reset(int(c.cfg.InitialClock.Seconds()), oracle.New())
	c.bus.Broadcast(wire.EvGameReset, struct{}{})
	c.bus.Broadcast(wire.EvClockUpdate, wire.ClockPayload{
		WhiteTime: c.state.Clocks.White,
		BlackTime: c.state.Clocks.Black,
	})
	c.bus.Broadcast(wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(game.Lobby)})
	c.bus.Broadcast(wire.EvChatMessage, wire.ChatPayload{Sender: "system", Message: "The game has been reset.", System: true})
}

// RecheckAfterRosterChange implements voting.Effects: a kick can empty a
// side mid-game, which is abandonment by another name.
func (c *Core) RecheckAfterRosterChange() {
	for _, side := range []game.Side{game.White, game.Black} {
		if c.state.Status == game.Lobby || c.state.Status == game.Over {
			continue
		}
		online := c.sessions.OnlinePIDsForSide(session.Side(side))
		anyOnline := false
		for pid := range c.state.Teams[side] {
			if _, ok := online[pid]; ok {
				anyOnline = true
				break
			}
		}
		if !anyOnline {
			c.EndGame(game.ReasonAbandonment, game.Opposite(side))
		}
	}
}
