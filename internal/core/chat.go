package core

import (
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/wire"
)

// broadcastChat relays a player's chat_message to everyone and records it
// in the bounded scrollback so a reconnecting player can catch up
// (SPEC_FULL's supplemented "bounded chat history" feature).
func (c *Core) broadcastChat(pid session.PID, message string) {
	if message == "" {
		return
	}
	sess, ok := c.sessions.Get(pid)
	if !ok {
		return
	}
	payload := wire.ChatPayload{Sender: sess.Name, SenderID: pid, Message: message}
	c.appendChatHistory(payload)
	c.bus.Broadcast(wire.EvChatMessage, payload)
}

func (c *Core) appendChatHistory(msg wire.ChatPayload) {
	if c.cfg.ChatHistory <= 0 {
		return
	}
	c.chatHistory = append(c.chatHistory, msg)
	if overflow := len(c.chatHistory) - c.cfg.ChatHistory; overflow > 0 {
		c.chatHistory = c.chatHistory[overflow:]
	}
}

// replayChatHistory unicasts the scrollback to a freshly connected
// session so it can see recent conversation context.
func (c *Core) replayChatHistory(pid session.PID) {
	for _, msg := range c.chatHistory {
		c.bus.Unicast(pid, wire.EvChatMessage, msg)
	}
}
