// Package transport implements the websocket Transport Gateway of spec.md
// §6/§7: one gorilla/websocket connection per session, a JSON envelope
// {event, payload} in both directions, and a Dispatcher callback into
// Core's single event loop. Connection state (the conn map, per-socket
// write mutex) follows the same shape as the reference session handler
// other_examples' game session keeps around one *websocket.Conn: a
// dedicated write mutex guarding WriteJSON, since gorilla's Conn forbids
// concurrent writers.
package transport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/teamchess/server/internal/actor"
	"github.com/teamchess/server/internal/metrics"
	"github.com/teamchess/server/internal/session"
	"github.com/teamchess/server/log"
)

// Inbound is the envelope every client-to-server command arrives in.
type Inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound is the envelope every server-to-client event is wrapped in.
type Outbound struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Dispatcher is Core's inbound-facing surface. The Gateway invokes Connect,
// Disconnect, and Handle through its Poster, so they run on the single
// event loop; IsKnownPID is called directly from the connection goroutine
// during the upgrade.
type Dispatcher interface {
	Connect(pid session.PID, requestedName string)
	Disconnect(pid session.PID)
	Handle(pid session.PID, event string, payload json.RawMessage)

	// IsKnownPID reports whether pid already names a live Session. A
	// client-supplied pid that isn't known must never be accepted as-is
	// (spec.md §6, "Connection auth": reuse only when the pid is known).
	IsKnownPID(pid session.PID) bool
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) sendJSON(v Outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Gateway owns every live websocket connection, keyed by the persistent
// session PID rather than by socket, so a reconnecting PID simply replaces
// its old entry. It provides Unicast, SendTo, Broadcast, and Disconnect;
// internal/core's bus wraps it into a full wire.Broadcaster.
type Gateway struct {
	log        log.Logger
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	post       actor.Poster

	mu    sync.RWMutex
	conns map[session.PID]*conn
}

// New builds a Gateway. SetDispatcher must be called before ServeHTTP
// starts accepting connections.
func New(logger log.Logger, post actor.Poster) *Gateway {
	return &Gateway{
		log:  logger.Named("transport"),
		post: post,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[session.PID]*conn),
	}
}

// SetDispatcher wires the Gateway to Core. Split from New because of
// construction order: Core needs the Gateway before it can build itself,
// and the Gateway needs Core's Dispatcher before it can serve traffic.
func (g *Gateway) SetDispatcher(d Dispatcher) {
	g.dispatcher = d
}

// pidFromRequest resolves the session identity for an inbound connection.
// A client-supplied pid is only honored when the Dispatcher already knows
// it as a live Session; an unknown or missing pid always yields a fresh
// server-minted identifier (spec.md §6, "Connection auth").
func (g *Gateway) pidFromRequest(r *http.Request) session.PID {
	if raw := r.URL.Query().Get("pid"); raw != "" {
		pid := session.PID(raw)
		if g.dispatcher != nil && g.dispatcher.IsKnownPID(pid) {
			return pid
		}
	}
	return session.NewPID()
}

// ServeHTTP upgrades the request to a websocket, registers the connection
// under its session PID, and runs the read loop until the socket closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WebsocketConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		g.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	metrics.WebsocketConnectionsTotal.WithLabelValues("accepted").Inc()

	pid := g.pidFromRequest(r)
	name := r.URL.Query().Get("name")

	c := &conn{ws: ws}
	g.mu.Lock()
	g.conns[pid] = c
	g.mu.Unlock()

	g.post(func() { g.dispatcher.Connect(pid, name) })
	g.readLoop(pid, c)
}

func (g *Gateway) readLoop(pid session.PID, c *conn) {
	defer g.teardown(pid, c)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			g.log.Warnw("malformed inbound message", "pid", pid, "err", err)
			continue
		}
		event, payload := in.Event, in.Payload
		g.post(func() { g.dispatcher.Handle(pid, event, payload) })
	}
}

func (g *Gateway) teardown(pid session.PID, c *conn) {
	_ = c.ws.Close()
	g.mu.Lock()
	if current, ok := g.conns[pid]; ok && current == c {
		delete(g.conns, pid)
	}
	g.mu.Unlock()
	g.post(func() { g.dispatcher.Disconnect(pid) })
}

// Unicast sends payload to exactly one live connection, if any.
func (g *Gateway) Unicast(pid session.PID, event string, payload interface{}) {
	g.mu.RLock()
	c, ok := g.conns[pid]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if err := c.sendJSON(Outbound{Event: event, Payload: payload}); err != nil {
		g.log.Debugw("unicast send failed", "pid", pid, "event", event, "err", err)
	}
}

// SendTo delivers payload to exactly the PIDs in recipients. The Gateway
// has no notion of team membership — it only tracks sockets — so
// team-scoped delivery (wire.Broadcaster's TeamCast) is implemented by
// internal/core's bus adapter, which resolves the roster and calls this.
func (g *Gateway) SendTo(recipients map[session.PID]struct{}, event string, payload interface{}) {
	for pid := range recipients {
		g.Unicast(pid, event, payload)
	}
}

// Broadcast sends payload to every live connection.
func (g *Gateway) Broadcast(event string, payload interface{}) {
	g.mu.RLock()
	targets := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	out := Outbound{Event: event, Payload: payload}
	for _, c := range targets {
		if err := c.sendJSON(out); err != nil {
			g.log.Debugw("broadcast send failed", "event", event, "err", err)
		}
	}
}

// Disconnect forcibly closes pid's socket, used after a passed kick vote.
func (g *Gateway) Disconnect(pid session.PID) {
	g.mu.Lock()
	c, ok := g.conns[pid]
	if ok {
		delete(g.conns, pid)
	}
	g.mu.Unlock()
	if ok {
		_ = c.ws.Close()
	}
}
