package core

import (
	"encoding/json"

	"github.com/teamchess/server/internal/metrics"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/voting"
	"github.com/teamchess/server/internal/wire"
)

// Connect implements transport.Dispatcher.
func (c *Core) Connect(pid session.PID, requestedName string) {
	if err := c.lifecycleCtl.Connect(pid, requestedName); err != nil {
		c.bus.Unicast(pid, wire.EvError, wire.ErrorPayload{Message: err.Error()})
		c.bus.Disconnect(pid)
		return
	}
	c.replayChatHistory(pid)
}

// Disconnect implements transport.Dispatcher.
func (c *Core) Disconnect(pid session.PID) {
	c.lifecycleCtl.Disconnect(pid)
}

// IsKnownPID implements transport.Dispatcher.
func (c *Core) IsKnownPID(pid session.PID) bool {
	return c.sessions.Exists(pid)
}

type setNamePayload struct {
	Name string `json:"name"`
}

type joinSidePayload struct {
	Side session.Side `json:"side"`
}

type playMovePayload struct {
	LAN string `json:"lan"`
}

type chatPayload struct {
	Message string `json:"message"`
}

type startTeamVotePayload struct {
	Kind voting.Kind `json:"kind"`
}

type voteTeamPayload struct {
	Side   string        `json:"side"`
	Choice voting.Choice `json:"choice"`
}

type startKickVotePayload struct {
	Target session.PID `json:"target"`
}

type choicePayload struct {
	Choice voting.Choice `json:"choice"`
}

// Handle implements transport.Dispatcher: it decodes and routes one
// inbound command. Decode failures and business-rule errors are reported
// back to the sender via the unicast `error` event (spec.md §7) rather
// than by dropping the connection.
func (c *Core) Handle(pid session.PID, event string, payload json.RawMessage) {
	var err error
	switch event {
	case wire.CmdSetName:
		var p setNamePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.lifecycleCtl.Rename(pid, p.Name)
		}
	case wire.CmdJoinSide:
		var p joinSidePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.lifecycleCtl.SetSide(pid, p.Side)
			if err == nil {
				c.votingSvc.CancelAll() // a roster change invalidates in-flight majorities
			}
		}
	case wire.CmdPlayMove:
		var p playMovePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.turnCtl.PlayMove(pid, p.LAN)
			if err == nil {
				if sess, ok := c.sessions.Get(pid); ok {
					metrics.MovesProposedTotal.WithLabelValues(string(sess.Side)).Inc()
				}
			}
		}
	case wire.CmdChatMessage:
		var p chatPayload
		if err = json.Unmarshal(payload, &p); err == nil {
			c.broadcastChat(pid, p.Message)
		}
	case wire.CmdStartTeamVote:
		var p startTeamVotePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.votingSvc.StartTeamVote(pid, p.Kind)
		}
	case wire.CmdVoteTeam:
		var p voteTeamPayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.votingSvc.VoteTeam(pid, session.Side(p.Side), p.Choice)
		}
	case wire.CmdStartKickVote:
		var p startKickVotePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.votingSvc.StartKickVote(pid, p.Target)
		}
	case wire.CmdVoteKick:
		var p choicePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.votingSvc.VoteKick(pid, p.Choice)
		}
	case wire.CmdStartResetVote:
		err = c.votingSvc.StartResetVote(pid)
	case wire.CmdVoteReset:
		var p choicePayload
		if err = json.Unmarshal(payload, &p); err == nil {
			err = c.votingSvc.VoteReset(pid, p.Choice)
		}
	default:
		c.log.Warnw("unknown inbound event", "pid", pid, "event", event)
		return
	}

	if err != nil {
		c.bus.Unicast(pid, wire.EvError, wire.ErrorPayload{Message: err.Error()})
	}
}

