package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/podnest/studio/internal/app"
	"github.com/podnest/studio/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	ctxParticipant = "participant"

	sessParticipantID   = "pid"
	sessParticipantName = "pname"
	sessParticipantRole = "prole"
)

// Claims are issued by the account service. Guests are identified by email,
// hosts by subject.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Participant() (domain.Participant, error) {
	role, err := domain.ParseRole(c.Role)
	if err != nil {
		return domain.Participant{}, err
	}
	id := c.Subject
	if role != domain.RoleHost && c.Email != "" {
		id = domain.NormalizeEmail(c.Email)
	}
	return newParticipant(id, c.Name, role)
}

// newParticipant refuses the id timers act under.
func newParticipant(id, name string, role domain.Role) (domain.Participant, error) {
	if domain.ParticipantID(id) == app.SystemActor.ID {
		return domain.Participant{}, fmt.Errorf("%w: reserved id %q", domain.ErrInvalidParticipant, id)
	}
	return domain.NewParticipant(id, name, role)
}

type identity struct {
	jwtSecret    []byte
	trustHeaders bool
}

func (i *identity) verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("token")
}

// IdentityMiddleware resolves who is calling from a bearer token, the
// ?token= query (WebSocket clients cannot set headers), trusted debug headers
// or the session cookie, in that order. A verified identity is remembered in
// the session.
func (i *identity) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)

		if raw := bearer(c); raw != "" && len(i.jwtSecret) > 0 {
			claims, err := i.verify(raw)
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.http").Msg("token rejected")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			p, err := claims.Participant()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			remember(sess, p)
			c.Set(ctxParticipant, p)
			c.Next()
			return
		}

		if i.trustHeaders {
			if id := c.GetHeader("X-Participant-Id"); id != "" {
				role, err := domain.ParseRole(c.GetHeader("X-Participant-Role"))
				if err == nil {
					if p, err := newParticipant(id, c.GetHeader("X-Participant-Name"), role); err == nil {
						c.Set(ctxParticipant, p)
					}
				}
				c.Next()
				return
			}
		}

		if p, ok := recall(sess); ok {
			c.Set(ctxParticipant, p)
		}
		c.Next()
	}
}

func remember(sess sessions.Session, p domain.Participant) {
	sess.Set(sessParticipantID, string(p.ID))
	sess.Set(sessParticipantName, p.DisplayName)
	sess.Set(sessParticipantRole, string(p.Role))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
}

func recall(sess sessions.Session) (domain.Participant, bool) {
	id, _ := sess.Get(sessParticipantID).(string)
	name, _ := sess.Get(sessParticipantName).(string)
	role, _ := sess.Get(sessParticipantRole).(string)
	if id == "" {
		return domain.Participant{}, false
	}
	p, err := newParticipant(id, name, domain.Role(role))
	if err != nil {
		return domain.Participant{}, false
	}
	return p, true
}

func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := participant(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func participant(c *gin.Context) (domain.Participant, bool) {
	v, ok := c.Get(ctxParticipant)
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := v.(domain.Participant)
	return p, ok
}

// mustParticipant is only used behind RequireIdentity.
func mustParticipant(c *gin.Context) domain.Participant {
	p, _ := participant(c)
	return p
}
