package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/podnest/studio/internal/core"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InviteTimeLayout is how start times appear in invitation emails.
const InviteTimeLayout = "Jan 02, 2006 15:04"

// SystemActor performs transitions triggered by timers.
var SystemActor = domain.Participant{ID: "system", DisplayName: "scheduler", Role: domain.RoleHost}

// RoomGate is the part of the room registry the state machine drives.
type RoomGate interface {
	BindSession(studio domain.StudioID, gate core.Gate)
	CloseSession(studio domain.StudioID, gate core.Gate, reason core.EvictReason) int
	ClearSession(studio domain.StudioID, session domain.SessionID)
	ReopenStudio(studio domain.StudioID)
	SettleSession(ctx context.Context, studio domain.StudioID) int
	ParticipantCount(studio domain.StudioID) int
}

type MachineConfig struct {
	PublicURL string
	// EmptyRoomGrace ends a LIVE session whose room stayed empty this long.
	// Zero disables it.
	EmptyRoomGrace time.Duration
	Now            func() time.Time
}

type ScheduleRequest struct {
	StudioID         domain.StudioID
	Title            string
	Description      string
	StartTime        time.Time
	ExpectedDuration string
	RecordingType    domain.RecordingType
	Flags            domain.SessionFlags
	Guests           []domain.SessionGuest
}

// Machine is the single writer of session status. Transitions of one session
// are serialised; different sessions proceed in parallel.
type Machine struct {
	sessions SessionRepository
	studios  StudioDirectory
	rooms    RoomGate
	mailer   Mailer
	recorder Recorder

	publicURL string
	grace     time.Duration
	now       func() time.Time

	locks      *keyedMutex
	autoStart  *Scheduler
	emptyRooms *Scheduler
	logger     zerolog.Logger
}

func NewMachine(sessions SessionRepository, studios StudioDirectory, rooms RoomGate, mailer Mailer, recorder Recorder, cfg MachineConfig) *Machine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	m := &Machine{
		sessions:  sessions,
		studios:   studios,
		rooms:     rooms,
		mailer:    mailer,
		recorder:  recorder,
		publicURL: cfg.PublicURL,
		grace:     cfg.EmptyRoomGrace,
		now:       now,
		locks:     newKeyedMutex(),
		logger:    log.With().Str("module", "app.sessions").Logger(),
	}
	m.autoStart = NewScheduler(now, m.onStartTime)
	m.emptyRooms = NewScheduler(now, m.onGraceExpired)
	return m
}

func (m *Machine) Schedule(ctx context.Context, host domain.Participant, req ScheduleRequest) (*domain.ScheduledSession, error) {
	studio, err := m.studios.FindStudio(ctx, req.StudioID)
	if err != nil {
		return nil, err
	}
	if studio.OwnerID != host.ID {
		return nil, fmt.Errorf("%w: %s does not own studio %s", domain.ErrForbidden, host.ID, studio.ID)
	}

	s := &domain.ScheduledSession{
		ID:               domain.SessionID(uuid.NewString()),
		StudioID:         studio.ID,
		HostID:           host.ID,
		Title:            req.Title,
		Description:      req.Description,
		StartTime:        req.StartTime,
		ExpectedDuration: req.ExpectedDuration,
		RecordingType:    req.RecordingType,
		Flags:            req.Flags,
		Status:           domain.StatusUpcoming,
		CreatedAt:        m.now(),
	}
	for _, g := range req.Guests {
		if err := s.AddGuest(g); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.rooms.ReopenStudio(studio.ID)
	if s.Flags.AutoStartStudio {
		m.autoStart.Arm(s.ID, s.StartTime)
	}
	m.logger.Info().Str("session", string(s.ID)).Str("studio", string(studio.ID)).Int("guests", len(s.Guests)).Msg("session scheduled")

	m.sendInvites(ctx, studio, s)
	return s.Clone(), nil
}

// sendInvites never fails scheduling; delivery errors are only logged.
func (m *Machine) sendInvites(ctx context.Context, studio *domain.Studio, s *domain.ScheduledSession) {
	if m.mailer == nil {
		return
	}
	joinURL := studio.JoinURL(m.publicURL)
	for _, g := range s.Guests {
		inv := Invite{
			Recipient:     g.Email,
			RecipientName: g.Name,
			SessionTitle:  s.Title,
			StartTime:     s.StartTime.Format(InviteTimeLayout),
			JoinURL:       joinURL,
		}
		if err := m.mailer.SendSessionInvite(ctx, inv); err != nil {
			m.logger.Warn().Err(err).Str("session", string(s.ID)).Str("recipient", g.Email).Msg("invite not sent")
		}
	}
}

// Get returns a session to its host or one of its guests.
func (m *Machine) Get(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error) {
	s, err := m.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, s) {
		return nil, fmt.Errorf("%w: %s is not part of %s", domain.ErrForbidden, actor.ID, id)
	}
	return s, nil
}

// ListByStudio returns every session of the studio to its owner and only the
// sessions they are invited to to anyone else.
func (m *Machine) ListByStudio(ctx context.Context, actor domain.Participant, studio domain.StudioID) ([]*domain.ScheduledSession, error) {
	st, err := m.studios.FindStudio(ctx, studio)
	if err != nil {
		return nil, err
	}
	all, err := m.sessions.FindByStudio(ctx, studio)
	if err != nil {
		return nil, err
	}
	if st.OwnerID == actor.ID {
		return all, nil
	}
	out := make([]*domain.ScheduledSession, 0, len(all))
	for _, s := range all {
		if canView(actor, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func canView(actor domain.Participant, s *domain.ScheduledSession) bool {
	if actor.ID == s.HostID {
		return true
	}
	_, invited := s.Guest(string(actor.ID))
	return invited
}

// Start moves UPCOMING to LIVE. Recording starts at most once per session.
func (m *Machine) Start(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.Transition(domain.StatusLive); err != nil {
		return nil, err
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.autoStart.Disarm(id)
	m.rooms.BindSession(s.StudioID, core.GateFor(s))
	held := m.rooms.SettleSession(ctx, s.StudioID)
	m.logger.Info().Str("session", string(id)).Str("studio", string(s.StudioID)).Str("actor", string(actor.ID)).Int("held", held).Msg("session live")

	if s.Flags.AutoStartRecording && m.recorder != nil {
		if err := m.recorder.StartRecording(ctx, s.Clone()); err != nil {
			m.logger.Error().Err(err).Str("session", string(id)).Msg("recording start failed")
		}
	}
	return s.Clone(), nil
}

// End moves LIVE to COMPLETED and evicts the room.
func (m *Machine) End(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.Transition(domain.StatusCompleted); err != nil {
		return nil, err
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.emptyRooms.Disarm(id)
	n := m.rooms.CloseSession(s.StudioID, core.GateFor(s), core.ReasonSessionCompleted)
	m.handOver(ctx, s)
	m.logger.Info().Str("session", string(id)).Str("actor", string(actor.ID)).Int("evicted", n).Msg("session completed")
	return s.Clone(), nil
}

// Cancel is allowed from UPCOMING and LIVE. Cancelling a LIVE session evicts
// every connection of its room.
func (m *Machine) Cancel(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := m.cancelLocked(ctx, actor, s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *Machine) cancelLocked(ctx context.Context, actor domain.Participant, s *domain.ScheduledSession) error {
	from := s.Status
	if err := s.Transition(domain.StatusCancelled); err != nil {
		return err
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.autoStart.Disarm(s.ID)
	m.emptyRooms.Disarm(s.ID)
	n := 0
	if from == domain.StatusLive {
		n = m.rooms.CloseSession(s.StudioID, core.GateFor(s), core.ReasonSessionCancelled)
		m.handOver(ctx, s)
	}
	m.logger.Info().Str("session", string(s.ID)).Str("from", string(from)).Str("actor", string(actor.ID)).Int("evicted", n).Msg("session cancelled")
	return nil
}

// Delete removes an UPCOMING session. A LIVE session is cancelled first;
// finished sessions are kept.
func (m *Machine) Delete(ctx context.Context, actor domain.Participant, id domain.SessionID) error {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.load(ctx, actor, id)
	if err != nil {
		return err
	}
	switch s.Status {
	case domain.StatusUpcoming:
	case domain.StatusLive:
		if err := m.cancelLocked(ctx, actor, s); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot delete a %s session", domain.ErrInvalidTransition, s.Status)
	}
	if err := m.sessions.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	m.autoStart.Disarm(id)
	m.rooms.ClearSession(s.StudioID, id)
	m.logger.Info().Str("session", string(id)).Str("actor", string(actor.ID)).Msg("session deleted")
	return nil
}

// handOver gives the studio to its next session once s is over: a LIVE one is
// bound again, an UPCOMING one lifts the closed gate.
func (m *Machine) handOver(ctx context.Context, s *domain.ScheduledSession) {
	others, err := m.sessions.FindByStudio(ctx, s.StudioID)
	if err != nil {
		m.logger.Error().Err(err).Str("studio", string(s.StudioID)).Msg("hand over: list sessions")
		return
	}
	pending := false
	for _, o := range others {
		if o.ID == s.ID {
			continue
		}
		switch o.Status {
		case domain.StatusLive:
			m.rooms.BindSession(o.StudioID, core.GateFor(o))
			return
		case domain.StatusUpcoming:
			pending = true
		}
	}
	if pending {
		m.rooms.ReopenStudio(s.StudioID)
		m.logger.Debug().Str("studio", string(s.StudioID)).Msg("studio reopened for an upcoming session")
	}
}

// RespondInvitation records the guest's answer. On a finished session the
// answer is stored but changes nothing.
func (m *Machine) RespondInvitation(ctx context.Context, guest domain.Participant, id domain.SessionID, accept bool) (domain.SessionGuest, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.sessions.FindByID(ctx, id)
	if err != nil {
		return domain.SessionGuest{}, err
	}
	g, ok := s.Guest(string(guest.ID))
	if !ok {
		return domain.SessionGuest{}, fmt.Errorf("%w: %s", domain.ErrNotInvited, guest.ID)
	}
	if err := g.Respond(accept); err != nil {
		return domain.SessionGuest{}, err
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		return domain.SessionGuest{}, fmt.Errorf("save session: %w", err)
	}
	ev := m.logger.Info()
	if s.Status.Terminal() {
		ev = m.logger.Debug().Bool("no_effect", true)
	}
	ev.Str("session", string(id)).Str("guest", g.Email).Str("invitation", string(g.InvitationStatus)).Msg("invitation answered")
	return *g, nil
}

// UpdateGuestCapabilities changes a guest's grant. Connected peers learn
// about it only through an explicit PERMISSION_CHANGE message.
func (m *Machine) UpdateGuestCapabilities(ctx context.Context, actor domain.Participant, id domain.SessionID, email string, caps domain.Capabilities) (domain.SessionGuest, error) {
	unlock := m.locks.Lock(string(id))
	defer unlock()

	s, err := m.load(ctx, actor, id)
	if err != nil {
		return domain.SessionGuest{}, err
	}
	g, ok := s.Guest(email)
	if !ok {
		return domain.SessionGuest{}, fmt.Errorf("%w: %s", domain.ErrNotInvited, domain.NormalizeEmail(email))
	}
	g.Capabilities = caps
	if err := m.sessions.Save(ctx, s); err != nil {
		return domain.SessionGuest{}, fmt.Errorf("save session: %w", err)
	}
	m.logger.Info().Str("session", string(id)).Str("guest", g.Email).Bool("mic", caps.Mic).Bool("camera", caps.Camera).Bool("screen", caps.ScreenShare).Msg("guest capabilities updated")
	return *g, nil
}

// Restore re-binds LIVE sessions and re-arms auto-start timers after a
// restart. Connections themselves are not recovered.
func (m *Machine) Restore(ctx context.Context) error {
	live, err := m.sessions.FindByStatus(ctx, domain.StatusLive)
	if err != nil {
		return fmt.Errorf("restore live sessions: %w", err)
	}
	for _, s := range live {
		m.rooms.BindSession(s.StudioID, core.GateFor(s))
		m.OnRoomEmpty(s.StudioID, s.ID)
	}
	upcoming, err := m.sessions.FindByStatus(ctx, domain.StatusUpcoming)
	if err != nil {
		return fmt.Errorf("restore upcoming sessions: %w", err)
	}
	armed := 0
	for _, s := range upcoming {
		if s.Flags.AutoStartStudio {
			m.autoStart.Arm(s.ID, s.StartTime)
			armed++
		}
	}
	m.logger.Info().Int("live", len(live)).Int("armed", armed).Msg("sessions restored")
	return nil
}

// OnRoomEmpty is the registry hook for a LIVE room that lost its last
// connection.
func (m *Machine) OnRoomEmpty(_ domain.StudioID, id domain.SessionID) {
	if m.grace <= 0 {
		return
	}
	m.emptyRooms.Arm(id, m.now().Add(m.grace))
}

func (m *Machine) Close() {
	m.autoStart.Stop()
	m.emptyRooms.Stop()
}

func (m *Machine) onStartTime(id domain.SessionID) {
	_, err := m.Start(context.Background(), SystemActor, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrSessionNotFound):
		m.logger.Debug().Err(err).Str("session", string(id)).Msg("auto start skipped")
	default:
		m.logger.Error().Err(err).Str("session", string(id)).Msg("auto start failed")
	}
}

func (m *Machine) onGraceExpired(id domain.SessionID) {
	ctx := context.Background()
	s, err := m.sessions.FindByID(ctx, id)
	if err != nil {
		m.logger.Debug().Err(err).Str("session", string(id)).Msg("grace check skipped")
		return
	}
	if m.rooms.ParticipantCount(s.StudioID) > 0 {
		return
	}
	if _, err := m.End(ctx, SystemActor, id); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		m.logger.Error().Err(err).Str("session", string(id)).Msg("grace end failed")
	}
}

// load fetches a session the actor is allowed to drive.
func (m *Machine) load(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error) {
	s, err := m.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != SystemActor && (actor.Role != domain.RoleHost || actor.ID != s.HostID) {
		return nil, fmt.Errorf("%w: %s is not the host of %s", domain.ErrForbidden, actor.ID, id)
	}
	return s, nil
}
