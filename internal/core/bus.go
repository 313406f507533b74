package core

import (
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/internal/transport"
)

// bus adapts a *transport.Gateway plus the Session Registry into a full
// wire.Broadcaster: Unicast/Broadcast/Disconnect pass straight through,
// while TeamCast resolves side membership against the registry first,
// since the Gateway itself only knows about sockets.
type bus struct {
	gateway  *transport.Gateway
	sessions *session.Registry
}

func newBus(gateway *transport.Gateway, sessions *session.Registry) *bus {
	return &bus{gateway: gateway, sessions: sessions}
}

func (b *bus) Unicast(pid session.PID, event string, payload interface{}) {
	b.gateway.Unicast(pid, event, payload)
}

func (b *bus) TeamCast(side session.Side, event string, payload interface{}) {
	recipients := b.sessions.OnlinePIDsForSide(side)
	b.gateway.SendTo(recipients, event, payload)
}

func (b *bus) Broadcast(event string, payload interface{}) {
	b.gateway.Broadcast(event, payload)
}

func (b *bus) Disconnect(pid session.PID) {
	b.gateway.Disconnect(pid)
}
