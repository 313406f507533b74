package voting

import (
	"fmt"

	"github.com/teamchess/server/internal/game"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
)

// StartKickVote opens a server-wide vote to remove target. The target does
// not get a ballot (spec.md §4.4, "players may not vote on their own
// removal").
func (s *Service) StartKickVote(initiator, target session.PID) error {
	if initiator == target {
		return ErrCannotKickSelf
	}
	if _, ok := s.sessions.Get(target); !ok {
		return ErrUnknownTarget
	}
	if s.kickVote != nil {
		return ErrKickVoteAlreadyActive
	}

	eligible := s.sessions.AllOnlinePIDs(target)
	if len(eligible) == 0 {
		return ErrNoEligibleVoters
	}

	v := &Vote{
		Kind:      KindKick,
		Target:    target,
		Initiator: initiator,
		Eligible:  eligible,
		Yes:       map[session.PID]struct{}{},
		No:        map[session.PID]struct{}{},
		Required:  majority(len(eligible)),
	}
	s.kickVote = v
	v.Yes[initiator] = struct{}{}

	if s.evaluateKickVote(v) {
		return nil
	}
	v.Deadline = s.clock.Now().Add(s.duration)
	v.cancelTimer = s.armTimer(s.expireKickVote)
	s.broadcastKickVote(v)
	return nil
}

// VoteKick casts pid's ballot on the active kick vote.
func (s *Service) VoteKick(pid session.PID, choice Choice) error {
	v := s.kickVote
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
	if !s.evaluateKickVote(v) {
		s.broadcastKickVote(v)
	}
	return nil
}

func (s *Service) evaluateKickVote(v *Vote) bool {
	if len(v.Yes) >= v.Required {
		s.finishKickVote(v, true, "")
		return true
	}
	remainingPossibleYes := len(v.Eligible) - len(v.No)
	if remainingPossibleYes < v.Required {
		s.finishKickVote(v, false, "Not enough votes possible")
		return true
	}
	return false
}

func (s *Service) expireKickVote() {
	v := s.kickVote
	if v == nil {
		return
	}
	if len(v.Yes) >= v.Required {
		s.finishKickVote(v, true, "")
		return
	}
	s.finishKickVote(v, false, fmt.Sprintf("Time expired (%d yes, %d no, %d required)", len(v.Yes), len(v.No), v.Required))
}

// finishKickVote closes out v. failReason, when non-empty, is broadcast as
// a system chat message (spec.md §4.4's literal "Not enough votes possible"
// / "Time expired" short-circuit and expiry text).
func (s *Service) finishKickVote(v *Vote, passed bool, failReason string) {
	s.kickVote = nil
	s.bus.Broadcast(wire.EvKickVoteUpdate, wire.VoteUpdatePayload{Active: false})

	if !passed {
		s.log.Infow("kick vote failed", "target", v.Target, "reason", failReason)
		if failReason != "" {
			s.bus.Broadcast(wire.EvChatMessage, wire.ChatPayload{Sender: "system", Message: failReason, System: true})
		}
		return
	}
	s.log.Infow("kick vote passed", "target", v.Target)

	sess, ok := s.sessions.Get(v.Target)
	name := string(v.Target)
	if ok {
		name = sess.Name
		side := game.Side(sess.Side)
		if side == game.White || side == game.Black {
			s.state.RemoveFromTeam(side, v.Target)
		}
	}
	s.sessions.Blacklist(v.Target)
	s.sessions.Remove(v.Target)
	s.bus.Disconnect(v.Target)
	s.bus.Broadcast(wire.EvChatMessage, wire.ChatPayload{Sender: "system", Message: fmt.Sprintf("%s was removed from the game by vote.", name), System: true})
	s.effects.RecheckAfterRosterChange()
}

func (s *Service) broadcastKickVote(v *Vote) {
	s.bus.Broadcast(wire.EvKickVoteUpdate, wire.VoteUpdatePayload{
		Active:     true,
		Initiator:  string(v.Initiator),
		Target:     string(v.Target),
		YesVoters:  namesOf(s.sessions, v.Yes),
		NoVoters:   namesOf(s.sessions, v.No),
		Required:   v.Required,
		DeadlineMS: v.Deadline.UnixMilli(),
	})
}
