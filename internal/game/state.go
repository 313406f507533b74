// Package game owns the single in-memory aggregate described in spec.md §3:
// position (via an Oracle), move number, side-to-move, per-team PID sets,
// open proposals, clocks, status, terminal info, draw offer, active votes,
// and the blacklist's relationship to a fresh game. Mutation is the
// business of the Turn, Voting, Lifecycle, and Clock controllers and of
// internal/core; State itself only enforces the invariants of the data it
// holds.
package game

import (
	"sort"

	"github.com/teamchess/server/internal/oracle"
	"github.com/teamchess/server/internal/session"
)

// Side re-exports session.Side so callers only need one vocabulary for
// "white"/"black"/"spectator" across the whole module.
type Side = session.Side

const (
	White     Side = session.SideWhite
	Black     Side = session.SideBlack
	Spectator Side = session.SideSpectator
	NoSide    Side = ""
)

// Opposite returns the other playing side. Side must be White or Black.
func Opposite(s Side) Side {
	if s == White {
		return Black
	}
	return White
}

// Status is the Turn Controller's state machine position (spec.md §4.1).
type Status string

const (
	Lobby             Status = "lobby"
	AwaitingProposals Status = "awaiting_proposals"
	FinalizingTurn    Status = "finalizing_turn"
	Over              Status = "over"
)

// EndReason is the taxonomy of game_over.reason values from spec.md §6.
type EndReason string

const (
	ReasonCheckmate       EndReason = "checkmate"
	ReasonStalemate       EndReason = "stalemate"
	ReasonThreefold       EndReason = "threefold repetition"
	ReasonInsufficient    EndReason = "insufficient material"
	ReasonDrawByRule      EndReason = "draw by rule"
	ReasonResignation     EndReason = "resignation"
	ReasonDrawAgreement   EndReason = "draw by agreement"
	ReasonTimeout         EndReason = "timeout"
	ReasonAbandonment     EndReason = "abandonment"
)

// Proposal is a single player's legal move candidate for the current turn.
type Proposal struct {
	Proposer     session.PID
	ProposerName string
	MoveNumber   int
	Side         Side
	LAN          string
	SAN          string
}

// Clocks holds each side's remaining time, in whole seconds.
type Clocks struct {
	White int
	Black int
}

// Seconds returns the remaining time for side.
func (c Clocks) Seconds(side Side) int {
	if side == White {
		return c.White
	}
	return c.Black
}

// TerminalInfo captures how and why the game ended.
type TerminalInfo struct {
	Reason EndReason
	Winner Side // NoSide for a draw or abandonment with no survivor
	PGN    string
}

// TeamSet is the live, authoritative roster for one side once a game is
// active. It is snapshotted from the Session Registry on the game's first
// move and kept in lockstep with Session side changes afterward (spec.md
// §3, "TeamSet").
type TeamSet map[session.PID]struct{}

func newTeamSet() TeamSet { return make(TeamSet) }

func (t TeamSet) has(pid session.PID) bool {
	_, ok := t[pid]
	return ok
}

func (t TeamSet) add(pid session.PID)    { t[pid] = struct{}{} }
func (t TeamSet) remove(pid session.PID) { delete(t, pid) }

// PIDs returns a stable, sorted copy of the members, for deterministic
// iteration in tests and broadcasts.
func (t TeamSet) PIDs() []session.PID {
	out := make([]session.PID, 0, len(t))
	for pid := range t {
		out = append(out, pid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// State is the single in-memory aggregate owned exclusively by the game;
// the Session Registry is a separate, longer-lived store (spec.md §3,
// "Ownership").
type State struct {
	Oracle *oracle.Oracle

	Status     Status
	MoveNumber int
	SideToMove Side

	Teams map[Side]TeamSet

	// Proposals is keyed by proposer PID, at most one per PID per turn.
	Proposals map[session.PID]Proposal

	Clocks Clocks

	DrawOffer Side // NoSide when there is no offer outstanding

	Terminal *TerminalInfo
}

// NewState returns a freshly reset aggregate: Lobby, start position, full
// clocks, empty rosters.
func NewState(initialClockSeconds int) *State {
	return &State{
		Oracle:     oracle.New(),
		Status:     Lobby,
		MoveNumber: 1,
		SideToMove: White,
		Teams: map[Side]TeamSet{
			White: newTeamSet(),
			Black: newTeamSet(),
		},
		Proposals: make(map[session.PID]Proposal),
		Clocks:    Clocks{White: initialClockSeconds, Black: initialClockSeconds},
		DrawOffer: NoSide,
	}
}

// Reset restores Lobby/start position/full clocks/empty proposals/draw
// offer, per spec.md §4.4 "Reset vote / On pass". Active votes are not
// held in State and are left to the voting service. TeamSets are
// cleared; callers are responsible for re-deriving them from the Session
// Registry (the Session's own `team` fields are untouched — spec.md §4.2).
func (s *State) Reset(initialClockSeconds int, freshOracle *oracle.Oracle) {
	s.Oracle = freshOracle
	s.Status = Lobby
	s.MoveNumber = 1
	s.SideToMove = White
	s.Teams = map[Side]TeamSet{
		White: newTeamSet(),
		Black: newTeamSet(),
	}
	s.Proposals = make(map[session.PID]Proposal)
	s.Clocks = Clocks{White: initialClockSeconds, Black: initialClockSeconds}
	s.DrawOffer = NoSide
	s.Terminal = nil
}

// SnapshotRoster copies the current TeamSets from the Session Registry,
// used the instant the first legal move is submitted (spec.md §4.1).
func (s *State) SnapshotRoster(white, black map[session.PID]struct{}) {
	whiteSet := newTeamSet()
	for pid := range white {
		whiteSet.add(pid)
	}
	blackSet := newTeamSet()
	for pid := range black {
		blackSet.add(pid)
	}
	s.Teams[White] = whiteSet
	s.Teams[Black] = blackSet
}

// OnTeam reports whether pid is a member of the live TeamSet for side.
func (s *State) OnTeam(side Side, pid session.PID) bool {
	set, ok := s.Teams[side]
	if !ok {
		return false
	}
	return set.has(pid)
}

// AddToTeam adds pid to the live TeamSet for side, whatever the game's
// status; it is a no-op for a side without a TeamSet (spectator).
func (s *State) AddToTeam(side Side, pid session.PID) {
	if set, ok := s.Teams[side]; ok {
		set.add(pid)
	}
}

// RemoveFromTeam removes pid from the live TeamSet for side, dropping any
// open proposal of theirs (spec.md §4.1, "Leaving a side removes the PID
// from the expected set and drops any of their proposals").
func (s *State) RemoveFromTeam(side Side, pid session.PID) {
	if set, ok := s.Teams[side]; ok {
		set.remove(pid)
	}
	delete(s.Proposals, pid)
}

// TeamSize returns the number of PIDs on the live TeamSet for side,
// regardless of online status.
func (s *State) TeamSize(side Side) int {
	return len(s.Teams[side])
}

// AddProposal records a proposer's move for the current turn. Callers are
// responsible for validating turn/side/duplication rules first (spec.md
// §4.1, play_move steps 1-4).
func (s *State) AddProposal(p Proposal) {
	s.Proposals[p.Proposer] = p
}

// HasProposal reports whether pid already has a proposal this turn.
func (s *State) HasProposal(pid session.PID) bool {
	_, ok := s.Proposals[pid]
	return ok
}

// ClearProposals drops every open proposal (commit, reset, or game end).
func (s *State) ClearProposals() {
	s.Proposals = make(map[session.PID]Proposal)
}

// ReadyToFinalize implements spec.md §4.1's deterministic quorum rule:
// every online PID on the side-to-move's live TeamSet has submitted a
// proposal, and that set is non-empty.
func (s *State) ReadyToFinalize(onlineSideToMove map[session.PID]struct{}) bool {
	expected := s.Teams[s.SideToMove]
	online := make([]session.PID, 0, len(expected))
	for pid := range expected {
		if _, isOnline := onlineSideToMove[pid]; isOnline {
			online = append(online, pid)
		}
	}
	if len(online) == 0 {
		return false
	}
	for _, pid := range online {
		if !s.HasProposal(pid) {
			return false
		}
	}
	return true
}

// OrderedProposals returns this turn's proposals for the side to move, in
// a stable order (sorted by PID), for deterministic engine arbitration
// input and move_selected candidate lists.
func (s *State) OrderedProposals() []Proposal {
	out := make([]Proposal, 0, len(s.Proposals))
	for _, p := range s.Proposals {
		if p.Side == s.SideToMove {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Proposer < out[j].Proposer })
	return out
}
