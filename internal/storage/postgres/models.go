package postgres

import (
	"time"

	"github.com/podnest/studio/internal/domain"
)

type studioRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Name       string    `gorm:"size:200;not null"`
	OwnerID    string    `gorm:"size:254;not null;index"`
	InviteCode string    `gorm:"size:16;not null;uniqueIndex"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (studioRow) TableName() string { return "studios" }

type sessionRow struct {
	ID                     string    `gorm:"primaryKey;size:64"`
	StudioID               string    `gorm:"size:64;not null;index"`
	HostID                 string    `gorm:"size:254;not null"`
	Title                  string    `gorm:"size:200;not null"`
	Description            string    `gorm:"type:text"`
	StartTime              time.Time `gorm:"not null;index"`
	ExpectedDuration       string    `gorm:"size:32"`
	RecordingType          string    `gorm:"size:16;not null"`
	Status                 string    `gorm:"size:16;not null;index"`
	AutoStartStudio        bool      `gorm:"not null"`
	AutoStartRecording     bool      `gorm:"not null"`
	WaitingRoomEnabled     bool      `gorm:"not null"`
	MuteGuestsOnJoin       bool      `gorm:"not null"`
	AITranscriptionEnabled bool      `gorm:"column:ai_transcription_enabled;not null"`
	CreatedAt              time.Time `gorm:"not null"`

	Guests []guestRow `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (sessionRow) TableName() string { return "scheduled_sessions" }

type guestRow struct {
	SessionID        string `gorm:"primaryKey;size:64"`
	Email            string `gorm:"primaryKey;size:254"`
	Position         int    `gorm:"not null"`
	Name             string `gorm:"size:200;not null"`
	Role             string `gorm:"size:16;not null"`
	CanMic           bool   `gorm:"not null"`
	CanCamera        bool   `gorm:"not null"`
	CanScreenShare   bool   `gorm:"not null"`
	InvitationStatus string `gorm:"size:16;not null"`
}

func (guestRow) TableName() string { return "session_guests" }

func studioToRow(s *domain.Studio) *studioRow {
	return &studioRow{
		ID:         string(s.ID),
		Name:       s.Name,
		OwnerID:    string(s.OwnerID),
		InviteCode: string(s.InviteCode),
		CreatedAt:  s.CreatedAt,
	}
}

func rowToStudio(r *studioRow) *domain.Studio {
	return &domain.Studio{
		ID:         domain.StudioID(r.ID),
		Name:       r.Name,
		OwnerID:    domain.ParticipantID(r.OwnerID),
		InviteCode: domain.InviteCode(r.InviteCode),
		CreatedAt:  r.CreatedAt,
	}
}

func sessionToRow(s *domain.ScheduledSession) *sessionRow {
	row := &sessionRow{
		ID:                     string(s.ID),
		StudioID:               string(s.StudioID),
		HostID:                 string(s.HostID),
		Title:                  s.Title,
		Description:            s.Description,
		StartTime:              s.StartTime,
		ExpectedDuration:       s.ExpectedDuration,
		RecordingType:          string(s.RecordingType),
		Status:                 string(s.Status),
		AutoStartStudio:        s.Flags.AutoStartStudio,
		AutoStartRecording:     s.Flags.AutoStartRecording,
		WaitingRoomEnabled:     s.Flags.WaitingRoomEnabled,
		MuteGuestsOnJoin:       s.Flags.MuteGuestsOnJoin,
		AITranscriptionEnabled: s.Flags.AITranscriptionEnabled,
		CreatedAt:              s.CreatedAt,
	}
	for i, g := range s.Guests {
		row.Guests = append(row.Guests, guestRow{
			SessionID:        row.ID,
			Email:            g.Email,
			Position:         i,
			Name:             g.Name,
			Role:             string(g.Role),
			CanMic:           g.Capabilities.Mic,
			CanCamera:        g.Capabilities.Camera,
			CanScreenShare:   g.Capabilities.ScreenShare,
			InvitationStatus: string(g.InvitationStatus),
		})
	}
	return row
}

// rowToSession expects Guests preloaded in position order.
func rowToSession(r *sessionRow) *domain.ScheduledSession {
	s := &domain.ScheduledSession{
		ID:               domain.SessionID(r.ID),
		StudioID:         domain.StudioID(r.StudioID),
		HostID:           domain.ParticipantID(r.HostID),
		Title:            r.Title,
		Description:      r.Description,
		StartTime:        r.StartTime,
		ExpectedDuration: r.ExpectedDuration,
		RecordingType:    domain.RecordingType(r.RecordingType),
		Status:           domain.SessionStatus(r.Status),
		Flags: domain.SessionFlags{
			AutoStartStudio:        r.AutoStartStudio,
			AutoStartRecording:     r.AutoStartRecording,
			WaitingRoomEnabled:     r.WaitingRoomEnabled,
			MuteGuestsOnJoin:       r.MuteGuestsOnJoin,
			AITranscriptionEnabled: r.AITranscriptionEnabled,
		},
		CreatedAt: r.CreatedAt,
	}
	for _, g := range r.Guests {
		s.Guests = append(s.Guests, domain.SessionGuest{
			Email: g.Email,
			Name:  g.Name,
			Role:  domain.Role(g.Role),
			Capabilities: domain.Capabilities{
				Mic:         g.CanMic,
				Camera:      g.CanCamera,
				ScreenShare: g.CanScreenShare,
			},
			InvitationStatus: domain.InvitationStatus(g.InvitationStatus),
		})
	}
	return s
}
