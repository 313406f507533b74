// Package wire defines the transport-facing message vocabulary from
// spec.md §6: event names, payload shapes, and the Broadcaster port that
// every controller (Turn, Voting, Lifecycle, Clock) depends on instead of
// talking to the Transport Gateway directly.
package wire

import "github.com/teamchess/server/internal/session"

// Event names, client<->server, exactly as named in spec.md §6.
const (
	EvSession          = "session"
	EvPlayers          = "players"
	EvGameStatusUpdate = "game_status_update"
	EvGameStarted      = "game_started"
	EvGameReset        = "game_reset"
	EvGameOver         = "game_over"
	EvPositionUpdate   = "position_update"
	EvClockUpdate      = "clock_update"
	EvMoveSubmitted    = "move_submitted"
	EvMoveSelected     = "move_selected"
	EvTurnChange       = "turn_change"
	EvProposalRemoved  = "proposal_removed"
	EvDrawOfferUpdate  = "draw_offer_update"
	EvTeamVoteUpdate   = "team_vote_update"
	EvKickVoteUpdate   = "kick_vote_update"
	EvResetVoteUpdate  = "reset_vote_update"
	EvChatMessage      = "chat_message"
	EvError            = "error"

	CmdSetName        = "set_name"
	CmdJoinSide       = "join_side"
	CmdPlayMove       = "play_move"
	CmdChatMessage    = "chat_message"
	CmdStartTeamVote  = "start_team_vote"
	CmdVoteTeam       = "vote_team"
	CmdStartKickVote  = "start_kick_vote"
	CmdVoteKick       = "vote_kick"
	CmdStartResetVote = "start_reset_vote"
	CmdVoteReset      = "vote_reset"
)

// Broadcaster is the port every controller depends on to reach clients.
// The concrete implementation is internal/core's bus, which delivers
// through internal/transport's Gateway; tests use an in-memory recorder.
type Broadcaster interface {
	Unicast(pid session.PID, event string, payload interface{})
	TeamCast(side session.Side, event string, payload interface{})
	Broadcast(event string, payload interface{})
	Disconnect(pid session.PID)
}

// PlayerEntry is one row of a `players` roster.
type PlayerEntry struct {
	ID        session.PID `json:"id"`
	Name      string      `json:"name"`
	Connected bool        `json:"connected"`
}

// PlayersPayload backs the `players` broadcast.
type PlayersPayload struct {
	Spectators   []PlayerEntry `json:"spectators"`
	WhitePlayers []PlayerEntry `json:"whitePlayers"`
	BlackPlayers []PlayerEntry `json:"blackPlayers"`
}

// SessionPayload backs the unicast `session` event on connect.
type SessionPayload struct {
	ID   session.PID `json:"id"`
	Name string      `json:"name"`
}

// GameStatusPayload backs `game_status_update`.
type GameStatusPayload struct {
	Status string `json:"status"`
}

// ProposalPayload describes one player's submitted move, used by
// `move_submitted`, `game_started`'s proposal list, and as a candidate
// entry in `move_selected`.
type ProposalPayload struct {
	PID        session.PID `json:"pid"`
	Name       string      `json:"name"`
	MoveNumber int         `json:"moveNumber"`
	Side       string      `json:"side"`
	LAN        string      `json:"lan"`
	SAN        string      `json:"san"`
}

// MoveSelectedPayload backs `move_selected`.
type MoveSelectedPayload struct {
	WinnerPID  session.PID       `json:"winnerPid"`
	WinnerName string            `json:"winnerName"`
	MoveNumber int               `json:"moveNumber"`
	Side       string            `json:"side"`
	LAN        string            `json:"lan"`
	SAN        string            `json:"san"`
	FEN        string            `json:"fen"`
	Candidates []ProposalPayload `json:"candidates"`
}

// TurnChangePayload backs `turn_change`.
type TurnChangePayload struct {
	MoveNumber int    `json:"moveNumber"`
	Side       string `json:"side"`
}

// ProposalRemovedPayload backs `proposal_removed`.
type ProposalRemovedPayload struct {
	MoveNumber int         `json:"moveNumber"`
	Side       string      `json:"side"`
	ID         session.PID `json:"id"`
}

// PositionPayload backs `position_update`.
type PositionPayload struct {
	FEN string `json:"fen"`
}

// ClockPayload backs `clock_update`.
type ClockPayload struct {
	WhiteTime int `json:"whiteTime"`
	BlackTime int `json:"blackTime"`
}

// GameStartedPayload backs `game_started`.
type GameStartedPayload struct {
	MoveNumber int               `json:"moveNumber"`
	Side       string            `json:"side"`
	Proposals  []ProposalPayload `json:"proposals"`
}

// GameOverPayload backs `game_over`.
type GameOverPayload struct {
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
	PGN    string `json:"pgn"`
}

// DrawOfferPayload backs `draw_offer_update`. Side is nil when there is no
// outstanding offer, matching spec.md §6's `{ side | null }`.
type DrawOfferPayload struct {
	Side *string `json:"side"`
}

// VoteUpdatePayload is the shared shape for `team_vote_update`,
// `kick_vote_update`, and `reset_vote_update`.
type VoteUpdatePayload struct {
	Active    bool     `json:"active"`
	Type      string   `json:"type,omitempty"`
	Initiator string   `json:"initiator,omitempty"`
	Target    string   `json:"target,omitempty"`
	YesVoters []string `json:"yesVoters"`
	NoVoters  []string `json:"noVoters,omitempty"`
	Required  int      `json:"required,omitempty"`
	DeadlineMS int64   `json:"deadline,omitempty"`
}

// ChatPayload backs `chat_message`.
type ChatPayload struct {
	Sender   string      `json:"sender"`
	SenderID session.PID `json:"senderId,omitempty"`
	Message  string      `json:"message"`
	System   bool        `json:"system,omitempty"`
}

// ErrorPayload backs the unicast `error` event and ack error fields.
type ErrorPayload struct {
	Message string `json:"message"`
}
