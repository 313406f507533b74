// Package voting implements the three vote variants of spec.md §4.4: team
// action votes (resign / offer_draw / accept_draw), the global kick vote,
// and the global reset vote. Each is modeled the way the teacher's DKG
// state machine (core/dkg/state_machine.go) models its own proposal/
// acceptance protocol: an immutable eligibility snapshot taken at start,
// a mutable tally, sentinel errors for invalid transitions, and a timer
// owned by the service rather than by the vote itself.
package voting

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

// Kind enumerates every vote variant.
type Kind string

const (
	KindResign     Kind = "resign"
	KindOfferDraw  Kind = "offer_draw"
	KindAcceptDraw Kind = "accept_draw"
	KindKick       Kind = "kick"
	KindReset      Kind = "reset"
)

// Choice is a single ballot.
type Choice string

const (
	Yes Choice = "yes"
	No  Choice = "no"
)

// systemInitiator marks a vote that was started by the server itself
// rather than by a player (spec.md §4.4's system-triggered accept_draw).
const systemInitiator session.PID = "system"

// Sentinel errors, reported verbatim (or near-verbatim) to clients via the
// unicast `error` event or an ack's `error` field (spec.md §7).
var (
	ErrTeamVoteAlreadyActive  = errors.New("a vote is already in progress for your team")
	ErrNotOnATeam             = errors.New("only team members may start or vote on a team vote")
	ErrDrawOfferExists        = errors.New("a draw offer is already on the table")
	ErrNoDrawOfferToAccept    = errors.New("there is no draw offer to accept")
	ErrNoActiveVote           = errors.New("there is no vote in progress")
	ErrNotEligible            = errors.New("you are not eligible to vote")
	ErrAlreadyVoted           = errors.New("you already voted")
	ErrKickVoteAlreadyActive  = errors.New("a kick vote is already in progress")
	ErrCannotKickSelf         = errors.New("you cannot start a vote to kick yourself")
	ErrUnknownTarget          = errors.New("player not found")
	ErrNoEligibleVoters       = errors.New("not enough players online to hold a vote")
	ErrResetVoteAlreadyActive = errors.New("a reset vote is already in progress")
	ErrResetNotAllowedInLobby = errors.New("cannot reset a game that has not started")
)

// Vote is a single in-flight vote of any Kind.
type Vote struct {
	Kind      Kind
	Team      game.Side   // White/Black for team votes, NoSide otherwise
	Target    session.PID // kick only
	Initiator session.PID
	System    bool

	Eligible map[session.PID]struct{}
	Yes      map[session.PID]struct{}
	No       map[session.PID]struct{}
	Required int
	Deadline time.Time

	cancelTimer func() bool
}

func majority(n int) int {
	return n/2 + 1
}

// Effects is the set of cross-component actions a vote outcome can
// trigger. Implemented by internal/core.Core, which alone knows how to
// coordinate the engine, clock, and transport lifecycles these actions
// require.
type Effects interface {
	EndGame(reason game.EndReason, winner game.Side)
	ResetGame()
	RecheckAfterRosterChange()
}

// Service owns every currently active vote and the timers that expire
// them.
type Service struct {
	log      log.Logger
	clock    clockwork.Clock
	post     actor.Poster
	duration time.Duration

	state    *game.State
	sessions *session.Registry
	bus      wire.Broadcaster
	effects  Effects

	teamVotes map[game.Side]*Vote
	kickVote  *Vote
	resetVote *Vote
}

// NewService builds a Service. duration is the fixed vote length from
// spec.md §6 (20s).
func NewService(
	logger log.Logger,
	clock clockwork.Clock,
	post actor.Poster,
	duration time.Duration,
	state *game.State,
	sessions *session.Registry,
	bus wire.Broadcaster,
	effects Effects,
) *Service {
	return &Service{
		log:       logger.Named("voting"),
		clock:     clock,
		post:      post,
		duration:  duration,
		state:     state,
		sessions:  sessions,
		bus:       bus,
		effects:   effects,
		teamVotes: make(map[game.Side]*Vote),
	}
}

func namesOf(reg *session.Registry, pids map[session.PID]struct{}) []string {
	return reg.DisplayNames(pids)
}

func (s *Service) armTimer(fire func()) func() bool {
	timer := s.clock.AfterFunc(s.duration, func() {
		s.post(fire)
	})
	return timer.Stop
}

// CancelAll stops every active vote's timer without running its outcome
// handler. Used on game end, game reset, and side changes.
func (s *Service) CancelAll() {
	for side, v := range s.teamVotes {
		if v != nil && v.cancelTimer != nil {
			v.cancelTimer()
		}
		delete(s.teamVotes, side)
	}
	if s.kickVote != nil && s.kickVote.cancelTimer != nil {
		s.kickVote.cancelTimer()
	}
	s.kickVote = nil
	if s.resetVote != nil && s.resetVote.cancelTimer != nil {
		s.resetVote.cancelTimer()
	}
	s.resetVote = nil
}
