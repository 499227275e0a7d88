package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

// a room can be destroyed between OpenOrGet and Admit
const maxJoinAttempts = 3

func (o *Orchestrator) Join(ctx context.Context, req core.AdmitRequest) (*core.Connection, error) {
	if o.Studios != nil {
		st, err := o.Studios.FindStudio(ctx, req.StudioID)
		if err != nil {
			return nil, err
		}
		// HOST is per studio: hosting one studio does not make you host of another
		if req.Participant.Role == domain.RoleHost && st.OwnerID != req.Participant.ID {
			req.Participant.Role = domain.RoleGuest
		}
	}
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		o.Registry.OpenOrGet(req.StudioID)
		conn, err := o.Registry.Admit(ctx, req)
		if errors.Is(err, core.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "orch").Str("studio", string(req.StudioID)).Str("participant", string(conn.Participant.ID)).Str("role", string(conn.Participant.Role)).Msg("joined")
		return conn, nil
	}
	return nil, core.ErrRoomNotFound
}

func (o *Orchestrator) Leave(conn *core.Connection, reason core.EvictReason) bool {
	return o.Registry.Evict(conn, reason)
}

// Kick evicts every connection of the participant. Only the studio owner may
// kick.
func (o *Orchestrator) Kick(ctx context.Context, actor domain.Participant, studio domain.StudioID, target domain.ParticipantID) (int, error) {
	st, err := o.Studios.FindStudio(ctx, studio)
	if err != nil {
		return 0, err
	}
	if actor.Role != domain.RoleHost || st.OwnerID != actor.ID {
		return 0, fmt.Errorf("%w: %s does not own studio %s", domain.ErrForbidden, actor.ID, studio)
	}
	roster, err := o.Registry.ListParticipants(studio)
	if errors.Is(err, core.ErrRoomNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	kicked := 0
	for _, v := range roster {
		if v.ParticipantID != target {
			continue
		}
		if conn, ok := o.Registry.Lookup(studio, v.ConnectionID); ok && o.Registry.Evict(conn, core.ReasonKicked) {
			kicked++
		}
	}
	log.Info().Str("module", "orch").Str("studio", string(studio)).Str("target", string(target)).Int("kicked", kicked).Msg("kick")
	return kicked, nil
}

// Participants returns an empty roster for a studio without a room.
func (o *Orchestrator) Participants(studio domain.StudioID) []core.ParticipantView {
	roster, err := o.Registry.ListParticipants(studio)
	if err != nil {
		return []core.ParticipantView{}
	}
	return roster
}
