// Package session owns persistent player identity. A Session is born on
// first connect and survives transport drops for a grace window; it is keyed
// by an opaque PID rather than by the live socket, the way drand keeps
// Session records separate from the live connection table (see
// core/drand_daemon.go's beaconProcesses map keyed by beacon ID rather than
// by gRPC stream).
package session

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PID is a persistent, opaque player identifier. Stable across reconnects.
type PID string

// Side mirrors game.Side without importing the game package, to keep
// session free of any game-state dependency. game.Side values convert
// losslessly to and from Side via their shared string values.
type Side string

const (
	SideWhite     Side = "white"
	SideBlack     Side = "black"
	SideSpectator Side = "spectator"
)

const maxNameLength = 30

// Session is a durable player record, independent of any live socket.
type Session struct {
	PID  PID
	Name string
	Side Side

	// Connected is true while a live socket is bound to this PID.
	Connected bool

	// removalTimer, when non-nil, cancels the pending grace-window removal
	// of this Session. Owned and invoked by Registry.
	removalTimer func()
}

// TrimName applies the 30-character display name limit from spec.md §4.2.
func TrimName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	if name == "" {
		return "Player"
	}
	return name
}

// Registry maps PID to Session, outliving any individual socket. A PID
// corresponds to zero or one live socket at any moment.
type Registry struct {
	mu       sync.Mutex
	sessions map[PID]*Session
	blocked  map[PID]struct{}
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[PID]*Session),
		blocked:  make(map[PID]struct{}),
	}
}

// NewPID mints a fresh, server-generated opaque identifier.
func NewPID() PID {
	return PID(uuid.NewString())
}

// IsBlacklisted reports whether pid is forbidden from joining. The
// blacklist persists across resets within the process lifetime (spec.md
// §3, "Blacklist").
func (r *Registry) IsBlacklisted(pid PID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, blocked := r.blocked[pid]
	return blocked
}

// Blacklist adds pid to the blacklist.
func (r *Registry) Blacklist(pid PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[pid] = struct{}{}
}

// Exists reports whether pid has a live Session record, regardless of its
// connected state. Used by the Transport Gateway to decide whether a
// client-supplied pid may be reused or must be replaced with a freshly
// minted identifier (spec.md §6, "Connection auth").
func (r *Registry) Exists(pid PID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[pid]
	return ok
}

// Get returns the session for pid, if any.
func (r *Registry) Get(pid PID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[pid]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// GetOrCreate reuses an existing session for pid (marking it connected and
// cancelling any pending removal), or creates a fresh spectator session.
// The stored removal-timer cancel func, if any, is invoked when an existing
// session is reused.
func (r *Registry) GetOrCreate(pid PID, name string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[pid]; ok {
		existing.Connected = true
		if existing.removalTimer != nil {
			existing.removalTimer()
		}
		existing.removalTimer = nil
		cp := *existing
		return &cp, false
	}

	fresh := &Session{
		PID:       pid,
		Name:      TrimName(name),
		Side:      SideSpectator,
		Connected: true,
	}
	r.sessions[pid] = fresh
	cp := *fresh
	return &cp, true
}

// MarkDisconnected flips a session's Connected flag off and stores the
// cancellation function for its pending removal timer.
func (r *Registry) MarkDisconnected(pid PID, cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[pid]; ok {
		s.Connected = false
		s.removalTimer = cancel
	}
}

// CancelPendingRemoval cancels a session's removal timer if one is armed,
// e.g. when the PID reconnects within the grace window.
func (r *Registry) CancelPendingRemoval(pid PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[pid]; ok && s.removalTimer != nil {
		s.removalTimer()
		s.removalTimer = nil
	}
}

// Remove deletes the session for pid outright (grace expiry or kick).
func (r *Registry) Remove(pid PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, pid)
}

// SetSide updates the side field of an existing session.
func (r *Registry) SetSide(pid PID, side Side) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[pid]; ok {
		s.Side = side
	}
}

// SetName updates the display name of an existing session.
func (r *Registry) SetName(pid PID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[pid]; ok {
		s.Name = TrimName(name)
	}
}

// Roster is a snapshot used for the `players` broadcast.
type Roster struct {
	Spectators   []*Session
	WhitePlayers []*Session
	BlackPlayers []*Session
}

// Snapshot returns every live session grouped by side, sorted by PID for
// determinism.
func (r *Registry) Snapshot() Roster {
	r.mu.Lock()
	defer r.mu.Unlock()

	var roster Roster
	for _, s := range r.sessions {
		cp := *s
		switch s.Side {
		case SideWhite:
			roster.WhitePlayers = append(roster.WhitePlayers, &cp)
		case SideBlack:
			roster.BlackPlayers = append(roster.BlackPlayers, &cp)
		default:
			roster.Spectators = append(roster.Spectators, &cp)
		}
	}
	for _, group := range [][]*Session{roster.Spectators, roster.WhitePlayers, roster.BlackPlayers} {
		sort.Slice(group, func(i, j int) bool { return group[i].PID < group[j].PID })
	}
	return roster
}

// OnlinePIDsForSide returns the PIDs of connected sessions currently
// assigned to side.
func (r *Registry) OnlinePIDsForSide(side Side) map[PID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[PID]struct{})
	for pid, s := range r.sessions {
		if s.Side == side && s.Connected {
			out[pid] = struct{}{}
		}
	}
	return out
}

// AllOnlinePIDs returns every connected PID, optionally excluding one.
func (r *Registry) AllOnlinePIDs(exclude PID) map[PID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[PID]struct{})
	for pid, s := range r.sessions {
		if s.Connected && pid != exclude {
			out[pid] = struct{}{}
		}
	}
	return out
}

// DisplayNames resolves a set of PIDs into display names, for vote-update
// broadcasts.
func (r *Registry) DisplayNames(pids map[PID]struct{}) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(pids))
	for pid := range pids {
		if s, ok := r.sessions[pid]; ok {
			names = append(names, s.Name)
		}
	}
	return names
}
