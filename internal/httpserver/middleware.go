package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type ctxKey string

const identityCtxKey ctxKey = "identity"

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// sessionMiddleware resolves the session cookie into a domain.Identity.
// Missing or expired sessions are replaced by a fresh one.
func sessionMiddleware(sessions sessionManager, cookie CookieConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sid, _ := c.Cookie(cookie.Name)

		data, err := sessions.Load(ctx, sid)
		if errors.Is(err, domain.ErrNotFound) {
			sid, err = sessions.Start(ctx)
			if err == nil {
				setSessionCookie(c, cookie, sid, sessions.TTL())
			}
		}
		if err != nil {
			logger.Error("resolve session failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		setIdentity(c, domain.Identity{SessionID: sid, ProfileID: data.ProfileID})
		c.Next()
	}
}

func requireProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, ident domain.Identity) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), identityCtxKey, ident))
}

func identityFrom(c *gin.Context) domain.Identity {
	ident, _ := c.Request.Context().Value(identityCtxKey).(domain.Identity)
	return ident
}

func setSessionCookie(c *gin.Context, cookie CookieConfig, sid string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookie.Name, sid, int(ttl.Seconds()), "/", "", cookie.Secure, true)
}

func clearSessionCookie(c *gin.Context, cookie CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookie.Name, "", -1, "/", "", cookie.Secure, true)
}
