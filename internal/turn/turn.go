// Package turn implements the play_move contract of spec.md §4.1: a
// player submits a candidate move, it is validated against the live
// position without mutating it, recorded as a proposal, and once every
// online member of the side to move has proposed, the turn is finalized —
// arbitrated by the Engine Adapter when proposals disagree — and the
// board advances.
package turn

import (
	"context"
	"errors"
	"time"

	"github.com/teamchess/server/internal/clockservice"
	"github.com/teamchess/server/internal/engine"
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/oracle"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
	"github.com/teamchess/server/log"
)

// Sentinel errors surfaced to the submitting client. Their messages are the
// literal protocol-error strings spec.md §4.1 names, sent verbatim over the
// wire as the `error` event/ack payload (spec.md §7, §10.3).
var (
	ErrNotAPlayer            = errors.New("only players on a side may submit moves")
	ErrGameNotAcceptingMoves = errors.New("Not accepting moves right now.")
	ErrOnlyWhiteMayStart     = errors.New("Only the White team can start the game.")
	ErrBothTeamsRequired     = errors.New("Both teams must have at least one player.")
	ErrWrongTurn             = errors.New("Not your turn.")
	ErrAlreadyProposed       = errors.New("Already moved.")
	ErrIllegalMove           = errors.New("Illegal move.")
)

// Effects is the cross-component action finalizing a turn can trigger.
// Implemented by internal/core.Core.
type Effects interface {
	EndGame(reason game.EndReason, winner game.Side)
}

// Config is the subset of process configuration the Turn Controller needs.
type Config struct {
	LowTimeCutoffSeconds int
	LowTimeBonusSeconds  int
	EngineTimeout        time.Duration
}

// Controller owns turn progression for one game.
type Controller struct {
	log      log.Logger
	state    *game.State
	sessions *session.Registry
	bus      wire.Broadcaster
	engine   engine.Adapter
	effects  Effects
	cfg      Config
}

// New builds a Controller.
func New(logger log.Logger, state *game.State, sessions *session.Registry, bus wire.Broadcaster, eng engine.Adapter, effects Effects, cfg Config) *Controller {
	return &Controller{
		log:      logger.Named("turn"),
		state:    state,
		sessions: sessions,
		bus:      bus,
		engine:   eng,
		effects:  effects,
		cfg:      cfg,
	}
}

// PlayMove implements play_move. pid is the submitting session, lan is its
// candidate move in long algebraic notation (e.g. "e2e4").
func (c *Controller) PlayMove(pid session.PID, lan string) error {
	sess, ok := c.sessions.Get(pid)
	if !ok {
		return ErrNotAPlayer
	}
	side := game.Side(sess.Side)
	if side != game.White && side != game.Black {
		return ErrNotAPlayer
	}

	// Step 1: status gate. Lobby is only a valid submission state for a
	// White-team member proposing the opening move (spec.md §4.1 step 1).
	if c.state.Status != game.Lobby && c.state.Status != game.AwaitingProposals {
		return ErrGameNotAcceptingMoves
	}
	if c.state.Status == game.Lobby {
		if side != game.White {
			return ErrOnlyWhiteMayStart
		}
		white := c.sessions.OnlinePIDsForSide(session.SideWhite)
		black := c.sessions.OnlinePIDsForSide(session.SideBlack)
		if len(white) == 0 || len(black) == 0 {
			return ErrBothTeamsRequired
		}
		// Only now, with both guards satisfied, does the game actually
		// transition and broadcast — never on a rejected submission.
		c.startGame(white, black)
	}

	// Step 2: the submitter must belong to the side whose turn it is.
	activeSide := c.state.SideToMove
	if !c.state.OnTeam(activeSide, pid) {
		return ErrWrongTurn
	}
	// Step 3.
	if c.state.HasProposal(pid) {
		return ErrAlreadyProposed
	}

	// Step 4.
	san, err := c.state.Oracle.ValidateMove(lan)
	if err != nil {
		return ErrIllegalMove
	}

	p := game.Proposal{
		Proposer:     pid,
		ProposerName: sess.Name,
		MoveNumber:   c.state.MoveNumber,
		Side:         activeSide,
		LAN:          lan,
		SAN:          san,
	}
	c.state.AddProposal(p)
	c.bus.Broadcast(wire.EvMoveSubmitted, proposalPayload(p))

	online := c.sessions.OnlinePIDsForSide(session.Side(activeSide))
	if c.state.ReadyToFinalize(online) {
		c.finalize()
	}
	return nil
}

// startGame snapshots the live roster passed in into the authoritative
// TeamSets and opens the first turn. White always moves first (spec.md §9's
// open-question resolution); callers have already confirmed both rosters
// are non-empty.
func (c *Controller) startGame(white, black map[session.PID]struct{}) {
	c.state.SnapshotRoster(white, black)
	c.state.Status = game.AwaitingProposals
	c.bus.Broadcast(wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(game.AwaitingProposals)})
	c.bus.Broadcast(wire.EvGameStarted, wire.GameStartedPayload{
		MoveNumber: c.state.MoveNumber,
		Side:       string(c.state.SideToMove),
	})
}

func proposalPayload(p game.Proposal) wire.ProposalPayload {
	return wire.ProposalPayload{
		PID:        p.Proposer,
		Name:       p.ProposerName,
		MoveNumber: p.MoveNumber,
		Side:       string(p.Side),
		LAN:        p.LAN,
		SAN:        p.SAN,
	}
}

// finalize resolves the current turn: arbitrates between disagreeing
// proposals via the engine, commits the winning move to the live
// position, advances move number/side-to-move, and checks for a terminal
// result, in the priority order spec.md §4.1 requires (checkmate,
// stalemate, threefold, insufficient material, other draw rule).
func (c *Controller) finalize() {
	c.state.Status = game.FinalizingTurn
	c.bus.Broadcast(wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(game.FinalizingTurn)})
	proposals := c.state.OrderedProposals()
	fen := c.state.Oracle.FEN()

	lans := make([]string, len(proposals))
	for i, p := range proposals {
		lans[i] = p.LAN
	}

	winningLAN := c.arbitrate(fen, lans, proposals)
	winner := proposals[0]
	for _, p := range proposals {
		if p.LAN == winningLAN {
			winner = p
			break
		}
	}

	san, err := c.state.Oracle.ApplyMove(winningLAN)
	if err != nil {
		// Every candidate was independently validated against this exact
		// position moments ago, so this should never happen; log loudly
		// and let the turn remain open rather than corrupt the position.
		c.log.Errorw("engine-selected move rejected by oracle at commit", "lan", winningLAN, "fen", fen, "err", err)
		c.state.Status = game.AwaitingProposals
		c.state.ClearProposals()
		c.bus.Broadcast(wire.EvChatMessage, wire.ChatPayload{Sender: "system", Message: "System error: move could not be processed.", System: true})
		return
	}

	movedSide := c.state.SideToMove
	movedMoveNumber := c.state.MoveNumber
	c.applyLowTimeBonus(movedSide)
	c.state.ClearProposals()

	candidates := make([]wire.ProposalPayload, len(proposals))
	for i, p := range proposals {
		candidates[i] = proposalPayload(p)
	}
	c.bus.Broadcast(wire.EvMoveSelected, wire.MoveSelectedPayload{
		WinnerPID:  winner.Proposer,
		WinnerName: winner.ProposerName,
		MoveNumber: movedMoveNumber,
		Side:       string(movedSide),
		LAN:        winningLAN,
		SAN:        san,
		FEN:        c.state.Oracle.FEN(),
		Candidates: candidates,
	})

	result := c.state.Oracle.Result()
	if result.Over {
		reason, endWinner := classify(result)
		c.state.Status = game.FinalizingTurn // Effects.EndGame below commits the real terminal status
		c.effects.EndGame(reason, endWinner)
	} else {
		c.state.SideToMove = game.Opposite(movedSide)
		if c.state.SideToMove == game.White {
			c.state.MoveNumber++
		}
		c.state.Status = game.AwaitingProposals
		c.bus.Broadcast(wire.EvTurnChange, wire.TurnChangePayload{
			MoveNumber: c.state.MoveNumber,
			Side:       string(c.state.SideToMove),
		})
		c.bus.Broadcast(wire.EvGameStatusUpdate, wire.GameStatusPayload{Status: string(game.AwaitingProposals)})
	}

	c.bus.Broadcast(wire.EvPositionUpdate, wire.PositionPayload{FEN: c.state.Oracle.FEN()})
	c.bus.Broadcast(wire.EvClockUpdate, wire.ClockPayload{
		WhiteTime: c.state.Clocks.White,
		BlackTime: c.state.Clocks.Black,
	})
}

// arbitrate picks the winning LAN among a turn's (possibly disagreeing)
// proposals. A single distinct candidate needs no engine call. On engine
// fault or watchdog expiry, the first proposer (by PID order) wins —
// spec.md §9's resolution for engine unavailability.
func (c *Controller) arbitrate(fen string, lans []string, proposals []game.Proposal) string {
	unique := engine.Dedup(lans)
	if len(unique) == 1 {
		return unique[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EngineTimeout)
	defer cancel()

	chosen, err := c.engine.Choose(ctx, fen, unique)
	if err != nil {
		c.log.Warnw("engine arbitration failed, falling back to first proposer", "err", err)
		return proposals[0].LAN
	}
	return chosen
}

func (c *Controller) applyLowTimeBonus(side game.Side) {
	current := c.state.Clocks.Seconds(side)
	bonused := clockservice.LowTimeBonus(current, c.cfg.LowTimeCutoffSeconds, c.cfg.LowTimeBonusSeconds)
	if side == game.White {
		c.state.Clocks.White = bonused
	} else {
		c.state.Clocks.Black = bonused
	}
}

func classify(r oracle.Result) (game.EndReason, game.Side) {
	winner := game.NoSide
	if r.WinnerIsWhite != nil {
		if *r.WinnerIsWhite {
			winner = game.White
		} else {
			winner = game.Black
		}
	}
	switch {
	case r.Checkmate:
		return game.ReasonCheckmate, winner
	case r.Stalemate:
		return game.ReasonStalemate, game.NoSide
	case r.Threefold:
		return game.ReasonThreefold, game.NoSide
	case r.Insufficient:
		return game.ReasonInsufficient, game.NoSide
	case r.OtherDrawRule:
		return game.ReasonDrawByRule, game.NoSide
	default:
		return game.ReasonDrawByRule, game.NoSide
	}
}
