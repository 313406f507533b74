package voting

import (
	"fmt"

	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
)

func strPtr(s string) *string { return &s }

// StartTeamVote opens a resign/offer_draw/accept_draw vote for initiator's
// team. The initiator's ballot is cast as yes immediately, so a lone online
// teammate passes the vote without waiting out the deadline (spec.md §4.4
// "a team of one decides alone").
func (s *Service) StartTeamVote(initiator session.PID, kind Kind) error {
	sess, ok := s.sessions.Get(initiator)
	if !ok {
		return ErrNotOnATeam
	}
	side := game.Side(sess.Side)
	if side != game.White && side != game.Black {
		return ErrNotOnATeam
	}
	if !s.state.OnTeam(side, initiator) {
		return ErrNotOnATeam
	}

	switch kind {
	case KindResign:
	case KindOfferDraw:
		if s.state.DrawOffer != game.NoSide {
			return ErrDrawOfferExists
		}
	case KindAcceptDraw:
		if s.state.DrawOffer != game.Opposite(side) {
			return ErrNoDrawOfferToAccept
		}
	default:
		return fmt.Errorf("voting: unsupported team vote kind %q", kind)
	}

	if _, active := s.teamVotes[side]; active {
		return ErrTeamVoteAlreadyActive
	}

	eligible := s.sessions.OnlinePIDsForSide(session.Side(side))
	if len(eligible) == 0 {
		return ErrNoEligibleVoters
	}

	v := &Vote{
		Kind:      kind,
		Team:      side,
		Initiator: initiator,
		Eligible:  eligible,
		Yes:       map[session.PID]struct{}{},
		No:        map[session.PID]struct{}{},
		Required:  len(eligible),
	}
	s.teamVotes[side] = v
	v.Yes[initiator] = struct{}{}

	if s.evaluateTeamVote(side, v) {
		return nil
	}
	v.Deadline = s.clock.Now().Add(s.duration)
	v.cancelTimer = s.armTimer(func() { s.expireTeamVote(side) })
	s.broadcastTeamVote(side, v)
	return nil
}

// startSystemAcceptDrawVote opens the accept_draw vote spec.md §4.4
// automatically chains onto a passed offer_draw, on behalf of the
// receiving team. No ballot is pre-cast; the receiving team must still
// agree.
func (s *Service) startSystemAcceptDrawVote(side game.Side) {
	if _, active := s.teamVotes[side]; active {
		return
	}
	eligible := s.sessions.OnlinePIDsForSide(session.Side(side))
	if len(eligible) == 0 {
		// Nobody online to accept; the offer simply stands until someone
		// joins or another vote supersedes it.
		return
	}
	v := &Vote{
		Kind:     KindAcceptDraw,
		Team:     side,
		System:   true,
		Eligible: eligible,
		Yes:      map[session.PID]struct{}{},
		No:       map[session.PID]struct{}{},
		Required: len(eligible),
	}
	s.teamVotes[side] = v
	v.Deadline = s.clock.Now().Add(s.duration)
	v.cancelTimer = s.armTimer(func() { s.expireTeamVote(side) })
	s.broadcastTeamVote(side, v)
}

// VoteTeam casts pid's ballot on the active team vote for side.
func (s *Service) VoteTeam(pid session.PID, side game.Side, choice Choice) error {
	v, ok := s.teamVotes[side]
	if !ok {
		return ErrNoActiveVote
	}
	if _, eligible := v.Eligible[pid]; !eligible {
		return ErrNotEligible
	}
	if _, voted := v.Yes[pid]; voted {
		return ErrAlreadyVoted
	}
	if _, voted := v.No[pid]; voted {
		return ErrAlreadyVoted
	}
	if choice == Yes {
		v.Yes[pid] = struct{}{}
	} else {
		v.No[pid] = struct{}{}
	}
	if !s.evaluateTeamVote(side, v) {
		s.broadcastTeamVote(side, v)
	}
	return nil
}

// evaluateTeamVote checks for an early pass (every eligible voter said yes)
// or an early fail (a single no makes unanimity mathematically impossible)
// and finishes the vote if either holds. Returns true if the vote was
// resolved.
func (s *Service) evaluateTeamVote(side game.Side, v *Vote) bool {
	if len(v.Yes) >= v.Required {
		s.finishTeamVote(side, v, true)
		return true
	}
	remainingPossibleYes := len(v.Eligible) - len(v.No)
	if remainingPossibleYes < v.Required {
		s.finishTeamVote(side, v, false)
		return true
	}
	return false
}

func (s *Service) expireTeamVote(side game.Side) {
	v, ok := s.teamVotes[side]
	if !ok {
		return
	}
	s.finishTeamVote(side, v, len(v.Yes) >= v.Required)
}

func (s *Service) finishTeamVote(side game.Side, v *Vote, passed bool) {
	delete(s.teamVotes, side)
	s.bus.Broadcast(wire.EvTeamVoteUpdate, wire.VoteUpdatePayload{
		Active: false,
		Type:   string(v.Kind),
	})

	if !passed {
		s.log.Infow("team vote failed", "team", side, "kind", v.Kind)
		if v.Kind == KindAcceptDraw {
			s.state.DrawOffer = game.NoSide
			s.bus.Broadcast(wire.EvDrawOfferUpdate, wire.DrawOfferPayload{Side: nil})
		}
		return
	}
	s.log.Infow("team vote passed", "team", side, "kind", v.Kind)

	switch v.Kind {
	case KindResign:
		s.effects.EndGame(game.ReasonResignation, game.Opposite(side))
	case KindOfferDraw:
		s.state.DrawOffer = side
		s.bus.Broadcast(wire.EvDrawOfferUpdate, wire.DrawOfferPayload{Side: strPtr(string(side))})
		s.startSystemAcceptDrawVote(game.Opposite(side))
	case KindAcceptDraw:
		s.state.DrawOffer = game.NoSide
		s.bus.Broadcast(wire.EvDrawOfferUpdate, wire.DrawOfferPayload{Side: nil})
		s.effects.EndGame(game.ReasonDrawAgreement, game.NoSide)
	}
}

// TeamVoteSnapshot returns the current team_vote_update state for side, for
// unicasting to a (re)connecting player on that team (spec.md §4.2). Active
// is false when no team vote is in flight for side.
func (s *Service) TeamVoteSnapshot(side game.Side) wire.VoteUpdatePayload {
	v, ok := s.teamVotes[side]
	if !ok {
		return wire.VoteUpdatePayload{Active: false}
	}
	initiator := string(v.Initiator)
	if v.System {
		initiator = string(systemInitiator)
	}
	return wire.VoteUpdatePayload{
		Active:     true,
		Type:       string(v.Kind),
		Initiator:  initiator,
		YesVoters:  namesOf(s.sessions, v.Yes),
		NoVoters:   namesOf(s.sessions, v.No),
		Required:   v.Required,
		DeadlineMS: v.Deadline.UnixMilli(),
	}
}

func (s *Service) broadcastTeamVote(side game.Side, v *Vote) {
	initiator := string(v.Initiator)
	if v.System {
		initiator = string(systemInitiator)
	}
	s.bus.Broadcast(wire.EvTeamVoteUpdate, wire.VoteUpdatePayload{
		Active:     true,
		Type:       string(v.Kind),
		Initiator:  initiator,
		YesVoters:  namesOf(s.sessions, v.Yes),
		NoVoters:   namesOf(s.sessions, v.No),
		Required:   v.Required,
		DeadlineMS: v.Deadline.UnixMilli(),
	})
}
