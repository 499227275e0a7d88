package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/podnest/studio/internal/app"
	"github.com/podnest/studio/internal/app/orch"
	"github.com/podnest/studio/internal/domain"
)

type handlers struct {
	orch      *orch.Orchestrator
	publicURL string
}

type createStudioRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

type studioResponse struct {
	*domain.Studio
	JoinURL string `json:"joinUrl"`
}

func (h *handlers) createStudio(c *gin.Context) {
	who := mustParticipant(c)
	if who.Role != domain.RoleHost {
		respondError(c, domain.ErrForbidden)
		return
	}
	var req createStudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := domain.NewStudio(req.Name, who.ID, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.orch.Studios.CreateStudio(c.Request.Context(), st); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, studioResponse{Studio: st, JoinURL: st.JoinURL(h.publicURL)})
}

func (h *handlers) studioByInvite(c *gin.Context) {
	st, err := h.orch.Studios.FindStudioByInviteCode(c.Request.Context(), domain.InviteCode(c.Param("code")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": st.ID, "name": st.Name, "inviteCode": st.InviteCode})
}

func (h *handlers) participants(c *gin.Context) {
	id := domain.StudioID(c.Param("id"))
	if _, err := h.orch.Studios.FindStudio(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": h.orch.Participants(id)})
}

func (h *handlers) kick(c *gin.Context) {
	n, err := h.orch.Kick(c.Request.Context(), mustParticipant(c), domain.StudioID(c.Param("id")), domain.ParticipantID(c.Param("participantId")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": n})
}

type guestRequest struct {
	Email        string              `json:"email" binding:"required,email"`
	Name         string              `json:"name" binding:"max=64"`
	Role         string              `json:"role" binding:"omitempty,role"`
	Capabilities domain.Capabilities `json:"capabilities"`
}

type scheduleRequest struct {
	StudioID         string              `json:"studioId" binding:"required"`
	Title            string              `json:"title" binding:"required,max=200"`
	Description      string              `json:"description"`
	StartTime        time.Time           `json:"startTime" binding:"required"`
	ExpectedDuration string              `json:"expectedDuration" binding:"max=32"`
	RecordingType    string              `json:"recordingType" binding:"required,recordingtype"`
	Flags            domain.SessionFlags `json:"flags"`
	Guests           []guestRequest      `json:"guests" binding:"dive"`
}

func (r scheduleRequest) toApp() app.ScheduleRequest {
	out := app.ScheduleRequest{
		StudioID:         domain.StudioID(r.StudioID),
		Title:            strings.TrimSpace(r.Title),
		Description:      r.Description,
		StartTime:        r.StartTime,
		ExpectedDuration: r.ExpectedDuration,
		RecordingType:    domain.RecordingType(strings.ToUpper(r.RecordingType)),
		Flags:            r.Flags,
	}
	for _, g := range r.Guests {
		role := domain.RoleGuest
		if g.Role != "" {
			role, _ = domain.ParseRole(g.Role)
		}
		out.Guests = append(out.Guests, domain.SessionGuest{
			Email:        g.Email,
			Name:         g.Name,
			Role:         role,
			Capabilities: g.Capabilities,
		})
	}
	return out
}

func (h *handlers) schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.orch.Sessions.Schedule(c.Request.Context(), mustParticipant(c), req.toApp())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handlers) listSessions(c *gin.Context) {
	studio := c.Query("studioId")
	if studio == "" {
		badRequest(c, errors.New("studioId is required"))
		return
	}
	list, err := h.orch.Sessions.ListByStudio(c.Request.Context(), mustParticipant(c), domain.StudioID(studio))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *handlers) getSession(c *gin.Context) {
	s, err := h.orch.Sessions.Get(c.Request.Context(), mustParticipant(c), domain.SessionID(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) deleteSession(c *gin.Context) {
	if err := h.orch.Sessions.Delete(c.Request.Context(), mustParticipant(c), domain.SessionID(c.Param("id"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type transitionFunc func(ctx context.Context, actor domain.Participant, id domain.SessionID) (*domain.ScheduledSession, error)

// transition serves start, end and cancel.
func (h *handlers) transition(op transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := op(c.Request.Context(), mustParticipant(c), domain.SessionID(c.Param("id")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

type respondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *handlers) respondInvitation(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.orch.Sessions.RespondInvitation(c.Request.Context(), mustParticipant(c), domain.SessionID(c.Param("id")), *req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) updateCapabilities(c *gin.Context) {
	var caps domain.Capabilities
	if err := c.ShouldBindJSON(&caps); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.orch.Sessions.UpdateGuestCapabilities(c.Request.Context(), mustParticipant(c), domain.SessionID(c.Param("id")), c.Param("email"), caps)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}
