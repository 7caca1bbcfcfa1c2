package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantcare/verdant-backend/internal/pkg/ctxutil"
	"github.com/verdantcare/verdant-backend/internal/pkg/logger"
	"github.com/verdantcare/verdant-backend/internal/services"
)

const (
	sessionCookie = "vc_session"
	authCookie    = "vc_token"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

type AuthMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, auth services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), auth: auth}
}

// Attach resolves the caller's identity when a token is present and always
// establishes a session key, minting the anonymous cookie on first contact.
// It never rejects; RequireAuth does that.
func (am *AuthMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &ctxutil.RequestData{}

		if token := extractToken(c); token != "" {
			rd.TokenString = token
			user, err := am.auth.ResolveToken(c.Request.Context(), token)
			if err == nil {
				rd.UserID = user.ID
			} else {
				am.log.Debug("token did not resolve", "error", err)
			}
		}

		if rd.UserID != uuid.Nil {
			rd.SessionKey = "user:" + rd.UserID.String()
		} else {
			rd.SessionKey = anonSessionKey(c)
		}

		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

// RequireAuth gates protected routes; Attach must run first.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := c.Cookie(authCookie); err == nil && cookie != "" {
		return cookie
	}
	return ""
}

func anonSessionKey(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie != "" {
		return "anon:" + cookie
	}
	val := uuid.NewString()
	c.SetCookie(sessionCookie, val, sessionCookieMaxAge, "/", "", false, true)
	return "anon:" + val
}
