package core

import (
	"errors"
	"slices"
	"sync"

	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is the live connection set of one studio. Membership changes and
// gate checks happen under mu; fan-out works on a snapshot.
// It never closes adapter-owned resources except on eviction.
type Room struct {
	studioID domain.StudioID

	mu     sync.RWMutex
	conns  []*Connection
	byID   map[ConnectionID]*Connection
	closed bool
}

func newRoom(id domain.StudioID) *Room {
	return &Room{
		studioID: id,
		byID:     make(map[ConnectionID]*Connection),
	}
}

func (r *Room) StudioID() domain.StudioID { return r.studioID }

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Room) contains(id ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// snapshot returns connections in admission order.
func (r *Room) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.conns)
}

// hasHost expects mu to be held.
func (r *Room) hasHost() bool {
	for _, c := range r.conns {
		if c.Participant.Role == domain.RoleHost {
			return true
		}
	}
	return false
}

// add expects mu to be held for writing.
func (r *Room) add(c *Connection) {
	r.conns = append(r.conns, c)
	r.byID[c.ID] = c
	log.Info().Str("module", "core.room").Str("studio", string(r.studioID)).Str("conn", string(c.ID)).Str("participant", string(c.Participant.ID)).Msg("connection admitted")
}

// remove expects mu to be held for writing.
func (r *Room) remove(id ConnectionID) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	r.conns = slices.DeleteFunc(r.conns, func(c *Connection) bool { return c.ID == id })
	log.Info().Str("module", "core.room").Str("studio", string(r.studioID)).Str("conn", string(id)).Msg("connection removed")
	return true
}

// broadcast enqueues f to every connection but from, in admission order.
func (r *Room) broadcast(from ConnectionID, f Frame) PublishResult {
	return fanOut(r.snapshot(), from, f)
}

// fanOut is shared by the locked and unlocked broadcast paths.
func fanOut(conns []*Connection, from ConnectionID, f Frame) PublishResult {
	res := PublishResult{}
	for _, c := range conns {
		if c.ID == from {
			continue
		}
		if err := c.out.TrySend(f); err != nil {
			if errors.Is(err, ErrBackpressure) {
				res.Dropped = append(res.Dropped, c)
			} else {
				res.Unreachable = append(res.Unreachable, c.ID)
			}
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Int("unreachable", len(res.Unreachable)).Msg("broadcast result")
	return res
}

// sendTo enqueues f to a single connection of this room.
func (r *Room) sendTo(to ConnectionID, f Frame) (PublishResult, error) {
	r.mu.RLock()
	target, ok := r.byID[to]
	r.mu.RUnlock()
	if !ok {
		return PublishResult{}, ErrUnknownPeer
	}
	if err := target.out.TrySend(f); err != nil {
		if errors.Is(err, ErrBackpressure) {
			return PublishResult{Dropped: []*Connection{target}}, ErrBackpressure
		}
		return PublishResult{Unreachable: []ConnectionID{to}}, ErrPeerUnreachable
	}
	return PublishResult{SentTo: 1}, nil
}
