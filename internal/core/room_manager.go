package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

// EmptyRoomHook is called, outside any lock, when the last connection leaves
// a room that is pinned by a LIVE session.
type EmptyRoomHook func(studio domain.StudioID, session domain.SessionID)

type Option func(*Registry)

func WithICEServers(servers []webrtc.ICEServer) Option {
	return func(r *Registry) { r.iceServers = servers }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is the single writer of room membership. Lock order is always
// room then registry.
type Registry struct {
	grants     GrantResolver
	iceServers []webrtc.ICEServer
	now        func() time.Time

	mu      sync.RWMutex
	rooms   map[domain.StudioID]*Room
	gates   map[domain.StudioID]Gate
	onEmpty EmptyRoomHook
}

func NewRegistry(grants GrantResolver, opts ...Option) *Registry {
	r := &Registry{
		grants: grants,
		now:    time.Now,
		rooms:  make(map[domain.StudioID]*Room),
		gates:  make(map[domain.StudioID]Gate),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) SetEmptyRoomHook(fn EmptyRoomHook) {
	r.mu.Lock()
	r.onEmpty = fn
	r.mu.Unlock()
}

func (r *Registry) OpenOrGet(id domain.StudioID) *Room {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()

	if ok {
		return room
	}

	r.mu.Lock()
	if room, ok = r.rooms[id]; !ok {
		room = newRoom(id)
		r.rooms[id] = room
		log.Info().Str("module", "core.registry").Str("studio", string(id)).Msg("room opened")
	}
	r.mu.Unlock()
	return room
}

func (r *Registry) room(id domain.StudioID) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

func (r *Registry) GateOf(id domain.StudioID) (Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[id]
	return g, ok
}

// dropRoom expects room.mu to be held and room.closed to be set.
func (r *Registry) dropRoom(room *Room) {
	r.mu.Lock()
	if r.rooms[room.studioID] == room {
		delete(r.rooms, room.studioID)
	}
	r.mu.Unlock()
	log.Info().Str("module", "core.registry").Str("studio", string(room.studioID)).Msg("room destroyed")
}

// reapLocked destroys an empty room that no LIVE session pins.
func (r *Registry) reapLocked(room *Room) {
	if len(room.conns) > 0 || room.closed {
		return
	}
	if g, ok := r.GateOf(room.studioID); ok && g.Live() {
		return
	}
	room.closed = true
	r.dropRoom(room)
}

type AdmitRequest struct {
	StudioID     domain.StudioID
	Participant  domain.Participant
	Capabilities domain.Capabilities
	Signal       SignalConnection
}

// Admit attaches a connection to an existing room. Guests admitted under a
// LIVE session get their requested capabilities clamped to their grant and
// their role from it.
func (r *Registry) Admit(ctx context.Context, req AdmitRequest) (*Connection, error) {
	if req.Signal == nil {
		return nil, errors.New("admit: nil signal connection")
	}
	for {
		room, ok := r.room(req.StudioID)
		if !ok {
			return nil, ErrRoomNotFound
		}
		gate, bound := r.GateOf(req.StudioID)
		grant, invited, err := r.resolveGrant(ctx, gate, bound, req.Participant)
		if err != nil {
			return nil, err
		}

		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			return nil, ErrRoomNotFound
		}
		if current, stillBound := r.GateOf(req.StudioID); current != gate || stillBound != bound {
			// session moved on while the grant was resolved
			room.mu.Unlock()
			continue
		}
		conn, err := r.admitLocked(room, req, gate, bound, grant, invited)
		room.mu.Unlock()
		return conn, err
	}
}

func (r *Registry) resolveGrant(ctx context.Context, gate Gate, bound bool, p domain.Participant) (Grant, bool, error) {
	if !bound || !gate.Live() || p.Role == domain.RoleHost || r.grants == nil {
		return Grant{}, false, nil
	}
	g, err := r.grants.ResolveGrant(ctx, gate.SessionID, p.ID)
	switch {
	case errors.Is(err, domain.ErrNotInvited):
		return Grant{}, false, nil
	case err != nil:
		return Grant{}, false, fmt.Errorf("resolve grant: %w", err)
	}
	return g, true, nil
}

func (r *Registry) admitLocked(room *Room, req AdmitRequest, gate Gate, bound bool, grant Grant, invited bool) (*Connection, error) {
	if bound && gate.Closed() {
		r.reapLocked(room)
		log.Info().Str("module", "core.registry").Str("studio", string(room.studioID)).Str("participant", string(req.Participant.ID)).Str("session_status", string(gate.Status)).Msg("admission rejected: session closed")
		return nil, ErrSessionClosed
	}

	live := bound && gate.Live()
	participant := req.Participant
	caps := req.Capabilities
	if live && participant.Role != domain.RoleHost {
		if invited {
			caps = caps.Clamp(grant.Capabilities)
			participant.Role = grant.role()
		} else {
			caps = domain.Capabilities{}
			participant.Role = domain.RoleGuest
		}
	}

	accepted := invited && grant.Invitation == domain.InvitationAccepted
	if live && gate.WaitingRoom && participant.Role == domain.RoleGuest && !accepted && !room.hasHost() {
		log.Info().Str("module", "core.registry").Str("studio", string(room.studioID)).Str("participant", string(participant.ID)).Msg("admission rejected: waiting for host")
		return nil, ErrWaitingForHost
	}

	conn := &Connection{
		ID:          ConnectionID(uuid.NewString()),
		StudioID:    room.studioID,
		Participant: participant,
		Caps:        caps,
		AdmittedAt:  r.now(),
		out:         req.Signal,
	}
	if live {
		conn.SessionID = gate.SessionID
	}

	roster := make([]ParticipantView, 0, len(room.conns))
	for _, c := range room.conns {
		roster = append(roster, c.View())
	}
	room.add(conn)

	welcome := WelcomePayload{
		Self:       conn.View(),
		SessionID:  conn.SessionID,
		StartMuted: live && gate.MuteGuestsOnJoin && participant.Role != domain.RoleHost,
		Roster:     roster,
	}
	if len(r.iceServers) > 0 {
		welcome.ICEServers = r.iceServers
	}
	r.sendTo(conn, TypeWelcome, welcome)
	r.notifyLocked(room, conn.ID, TypePeerJoined, PeerPayload{ParticipantView: conn.View()})
	return conn, nil
}

// Evict removes conn from its room. Only the call that actually removed the
// connection returns true.
func (r *Registry) Evict(conn *Connection, reason EvictReason) bool {
	room, ok := r.room(conn.StudioID)
	if !ok {
		return false
	}

	room.mu.Lock()
	if !room.remove(conn.ID) {
		room.mu.Unlock()
		return false
	}
	r.sendTo(conn, TypeEvicted, EvictedPayload{Reason: reason})
	conn.out.Close()
	r.notifyLocked(room, conn.ID, TypePeerLeft, PeerPayload{ParticipantView: conn.View(), Reason: reason})

	empty := len(room.conns) == 0
	gate, bound := r.GateOf(room.studioID)
	pinned := bound && gate.Live()
	if empty && !pinned {
		room.closed = true
		r.dropRoom(room)
	}
	r.mu.RLock()
	hook := r.onEmpty
	r.mu.RUnlock()
	room.mu.Unlock()

	log.Info().Str("module", "core.registry").Str("studio", string(conn.StudioID)).Str("conn", string(conn.ID)).Str("reason", string(reason)).Msg("connection evicted")
	if empty && pinned && hook != nil {
		hook(conn.StudioID, gate.SessionID)
	}
	return true
}

// BindSession installs a gate for the studio. A LIVE gate pins the room.
func (r *Registry) BindSession(id domain.StudioID, gate Gate) {
	r.mu.Lock()
	r.gates[id] = gate
	if _, ok := r.rooms[id]; !ok && gate.Live() {
		r.rooms[id] = newRoom(id)
	}
	r.mu.Unlock()
	log.Info().Str("module", "core.registry").Str("studio", string(id)).Str("session", string(gate.SessionID)).Str("status", string(gate.Status)).Msg("session bound")
}

// SettleSession applies the studio's LIVE gate to connections admitted before
// it. With the waiting room on and no HOST connected, guests whose invitation
// is not ACCEPTED are evicted and have to join again. Returns the number of
// evicted connections.
func (r *Registry) SettleSession(ctx context.Context, id domain.StudioID) int {
	gate, bound := r.GateOf(id)
	if !bound || !gate.Live() || !gate.WaitingRoom {
		return 0
	}
	room, ok := r.room(id)
	if !ok {
		return 0
	}
	room.mu.RLock()
	hasHost := room.hasHost()
	conns := slices.Clone(room.conns)
	room.mu.RUnlock()
	if hasHost {
		return 0
	}

	var held []*Connection
	for _, c := range conns {
		if c.Participant.Role == domain.RoleHost {
			continue
		}
		grant, invited, err := r.resolveGrant(ctx, gate, true, c.Participant)
		if err != nil {
			log.Warn().Err(err).Str("module", "core.registry").Str("conn", string(c.ID)).Msg("settle: grant not resolved")
			continue
		}
		if invited && (grant.role() == domain.RoleCoHost || grant.Invitation == domain.InvitationAccepted) {
			continue
		}
		held = append(held, c)
	}

	room.mu.RLock()
	hasHost = room.hasHost()
	room.mu.RUnlock()
	if hasHost {
		return 0
	}
	n := 0
	for _, c := range held {
		if r.Evict(c, ReasonWaitingForHost) {
			n++
		}
	}
	if n > 0 {
		log.Info().Str("module", "core.registry").Str("studio", string(id)).Str("session", string(gate.SessionID)).Int("evicted", n).Msg("early guests sent back to the waiting room")
	}
	return n
}

// CloseSession installs a terminal gate, then evicts every connection and
// destroys the room. Returns the number of evicted connections.
func (r *Registry) CloseSession(id domain.StudioID, gate Gate, reason EvictReason) int {
	r.mu.Lock()
	r.gates[id] = gate
	room, ok := r.rooms[id]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	room.mu.Lock()
	evicted := room.conns
	room.conns = nil
	room.byID = make(map[ConnectionID]*Connection)
	for _, c := range evicted {
		r.sendTo(c, TypeEvicted, EvictedPayload{Reason: reason})
		c.out.Close()
	}
	room.closed = true
	r.dropRoom(room)
	room.mu.Unlock()

	log.Info().Str("module", "core.registry").Str("studio", string(id)).Str("session", string(gate.SessionID)).Str("reason", string(reason)).Int("evicted", len(evicted)).Msg("session closed")
	return len(evicted)
}

// ClearSession forgets the gate of a session, if it is still the bound one,
// and reaps the room when nothing keeps it alive.
func (r *Registry) ClearSession(id domain.StudioID, session domain.SessionID) {
	r.mu.Lock()
	if g, ok := r.gates[id]; ok && g.SessionID == session {
		delete(r.gates, id)
	}
	room, ok := r.rooms[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	room.mu.Lock()
	r.reapLocked(room)
	room.mu.Unlock()
}

// ReopenStudio drops a terminal gate so the studio accepts connections again.
func (r *Registry) ReopenStudio(id domain.StudioID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gates[id]; ok && g.Closed() {
		delete(r.gates, id)
	}
}

func (r *Registry) Lookup(id domain.StudioID, conn ConnectionID) (*Connection, bool) {
	room, ok := r.room(id)
	if !ok {
		return nil, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	c, ok := room.byID[conn]
	return c, ok
}

// ListParticipants returns the roster in admission order.
func (r *Registry) ListParticipants(id domain.StudioID) ([]ParticipantView, error) {
	room, ok := r.room(id)
	if !ok {
		return nil, ErrRoomNotFound
	}
	conns := room.snapshot()
	out := make([]ParticipantView, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.View())
	}
	return out, nil
}

func (r *Registry) ParticipantCount(id domain.StudioID) int {
	room, ok := r.room(id)
	if !ok {
		return 0
	}
	return room.Len()
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Announce broadcasts a server-originated message to the whole room.
func (r *Registry) Announce(id domain.StudioID, typ MessageType, payload any) (PublishResult, error) {
	room, ok := r.room(id)
	if !ok {
		return PublishResult{}, ErrRoomNotFound
	}
	msg, err := NewMessage(id, typ, payload)
	if err != nil {
		return PublishResult{}, err
	}
	f, err := msg.Frame()
	if err != nil {
		return PublishResult{}, err
	}
	return room.broadcast("", f), nil
}

func (r *Registry) sendTo(c *Connection, typ MessageType, payload any) {
	msg, err := NewMessage(c.StudioID, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Msg("build message")
		return
	}
	f, err := msg.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Msg("encode message")
		return
	}
	if err := c.out.TrySend(f); err != nil {
		log.Debug().Err(err).Str("module", "core.registry").Str("conn", string(c.ID)).Str("type", string(typ)).Msg("server message not delivered")
	}
}

// notifyLocked expects room.mu to be held.
func (r *Registry) notifyLocked(room *Room, except ConnectionID, typ MessageType, payload any) {
	msg, err := NewMessage(room.studioID, typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Msg("build roster message")
		return
	}
	f, err := msg.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "core.registry").Msg("encode roster message")
		return
	}
	fanOut(room.conns, except, f)
}
