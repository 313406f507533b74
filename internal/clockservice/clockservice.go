// Package clockservice runs the 1Hz wall clock described in spec.md §4.3:
// while a turn is open it decrements the side-to-move's remaining time once
// per second, broadcasts the update, and ends the game on timeout. It is
// structured the way the teacher's beacon ticker (beacon/ticker.go) is: a
// clockwork.Clock-driven goroutine fed through a stop channel, its ticks
// funneled back onto the single event loop via actor.Poster rather than
// touched directly from the ticking goroutine.
package clockservice

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

// Effects is the cross-component action a clock timeout triggers.
// Implemented by internal/core.Core.
type Effects interface {
	EndGame(reason game.EndReason, winner game.Side)
}

// Service owns the ticking goroutine. Started once per process; left
// running across games (it is a no-op broadcast when Status is not
// AwaitingProposals).
type Service struct {
	log     log.Logger
	clock   clockwork.Clock
	post    actor.Poster
	state   *game.State
	bus     wire.Broadcaster
	effects Effects

	stop chan struct{}
}

// New builds a Service. Call Start to begin ticking.
func New(logger log.Logger, clock clockwork.Clock, post actor.Poster, state *game.State, bus wire.Broadcaster, effects Effects) *Service {
	return &Service{
		log:     logger.Named("clock"),
		clock:   clock,
		post:    post,
		state:   state,
		bus:     bus,
		effects: effects,
		stop:    make(chan struct{}),
	}
}

// Start launches the ticking goroutine. Safe to call once.
func (s *Service) Start() {
	go s.run()
}

// Stop terminates the ticking goroutine.
func (s *Service) Stop() {
	close(s.stop)
}

func (s *Service) run() {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.post(s.tick)
		case <-s.stop:
			return
		}
	}
}

// tick runs on the single event loop. It only decrements and broadcasts
// while a turn is actually open; Lobby/FinalizingTurn/Over games simply
// don't burn clock time (spec.md §4.3, "the clock only runs while the
// board is waiting on proposals").
func (s *Service) tick() {
	if s.state.Status != game.AwaitingProposals {
		return
	}

	side := s.state.SideToMove
	remaining := s.state.Clocks.Seconds(side) - 1
	if remaining < 0 {
		remaining = 0
	}
	if side == game.White {
		s.state.Clocks.White = remaining
	} else {
		s.state.Clocks.Black = remaining
	}

	s.bus.Broadcast(wire.EvClockUpdate, wire.ClockPayload{
		WhiteTime: s.state.Clocks.White,
		BlackTime: s.state.Clocks.Black,
	})

	if remaining == 0 {
		s.log.Infow("clock expired", "side", side)
		s.effects.EndGame(game.ReasonTimeout, game.Opposite(side))
	}
}

// LowTimeBonus applies the flat time increment a side receives when its
// move is committed while under cutoff (spec.md §4.3's low-time bonus),
// returning the side's new remaining seconds. Called by the Turn
// Controller at commit time, not by the ticker.
func LowTimeBonus(current, cutoff, bonus int) int {
	if current <= cutoff {
		return current + bonus
	}
	return current
}
