package app

import (
	"context"
	"time"

	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

type Announcer interface {
	Announce(studio domain.StudioID, typ core.MessageType, payload any) (core.PublishResult, error)
}

// RoomRecorder tells every client in the studio to start its local
// recording pipeline.
type RoomRecorder struct {
	rooms Announcer
	now   func() time.Time
}

func NewRoomRecorder(rooms Announcer) *RoomRecorder {
	return &RoomRecorder{rooms: rooms, now: time.Now}
}

type recordingStarted struct {
	SessionID     domain.SessionID     `json:"sessionId"`
	RecordingType domain.RecordingType `json:"recordingType"`
	Transcription bool                 `json:"aiTranscription"`
	StartedAt     time.Time            `json:"startedAt"`
}

func (r *RoomRecorder) StartRecording(_ context.Context, s *domain.ScheduledSession) error {
	res, err := r.rooms.Announce(s.StudioID, core.TypeRecordingStarted, recordingStarted{
		SessionID:     s.ID,
		RecordingType: s.RecordingType,
		Transcription: s.Flags.AITranscriptionEnabled,
		StartedAt:     r.now(),
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.recorder").Str("session", string(s.ID)).Int("notified", res.SentTo).Msg("recording started")
	return nil
}
