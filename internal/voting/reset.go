package voting

import (
	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
)

// StartResetVote opens a server-wide vote to abandon the current game and
// return to Lobby. Disallowed while the game has not started, since there
// is nothing to reset (spec.md §4.4).
func (s *Service) StartResetVote(initiator session.PID) error {
	if s.state.Status == game.Lobby {
		return ErrResetNotAllowedInLobby
	}
	if s.resetVote != nil {
		return ErrResetVoteAlreadyActive
	}

	eligible := s.sessions.AllOnlinePIDs("")
	if len(eligible) == 0 {
		return ErrNoEligibleVoters
	}

	v := &Vote{
		Kind:      KindReset,
		Initiator: initiator,
		Eligible:  eligible,
		Yes:       map[session.PID]struct{}{},
		No:        map[session.PID]struct{}{},
		Required:  majority(len(eligible)),
	}
	s.resetVote = v
	v.Yes[initiator] = struct{}{}

	if s.evaluateResetVote(v) {
		return nil
	}
	v.Deadline = s.clock.Now().Add(s.duration)
	v.cancelTimer = s.armTimer(s.expireResetVote)
	s.broadcastResetVote(v)
	return nil
}

// VoteReset casts pid's ballot on the active reset vote.
func (s *Service) VoteReset(pid session.PID, choice Choice) error {
	v := s.resetVote
	if v == nil {
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
	if !s.evaluateResetVote(v) {
		s.broadcastResetVote(v)
	}
	return nil
}

func (s *Service) evaluateResetVote(v *Vote) bool {
	if len(v.Yes) >= v.Required {
		s.finishResetVote(v, true)
		return true
	}
	remainingPossibleYes := len(v.Eligible) - len(v.No)
	if remainingPossibleYes < v.Required {
		s.finishResetVote(v, false)
		return true
	}
	return false
}

func (s *Service) expireResetVote() {
	v := s.resetVote
	if v == nil {
		return
	}
	s.finishResetVote(v, len(v.Yes) >= v.Required)
}

func (s *Service) finishResetVote(v *Vote, passed bool) {
	s.resetVote = nil
	s.bus.Broadcast(wire.EvResetVoteUpdate, wire.VoteUpdatePayload{Active: false})

	if !passed {
		s.log.Infow("reset vote failed")
		s.bus.Broadcast(wire.EvChatMessage, wire.ChatPayload{Sender: "system", Message: "Vote to reset the game failed.", System: true})
		return
	}
	s.log.Infow("reset vote passed")
	s.effects.ResetGame()
}

func (s *Service) broadcastResetVote(v *Vote) {
	s.bus.Broadcast(wire.EvResetVoteUpdate, wire.VoteUpdatePayload{
		Active:     true,
		Initiator:  string(v.Initiator),
		YesVoters:  namesOf(s.sessions, v.Yes),
		NoVoters:   namesOf(s.sessions, v.No),
		Required:   v.Required,
		DeadlineMS: v.Deadline.UnixMilli(),
	})
}
