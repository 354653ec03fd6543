package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

// AuthMiddleware resolves the bearer token to a live user.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.Debug().Err(err).Msg("invalid authorization header")
			abortWithError(c, http.StatusUnauthorized, core.ErrUnauthenticated)
			return
		}

		user, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.Debug().Err(err).Msg("authentication failed")
			status, ce := authFailure(err)
			abortWithError(c, status, ce)
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUsername, user.Username)

		c.Next()
	}
}

// authFailure maps an auth service error to a status and a core error.
func authFailure(err error) (int, *core.CoreError) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, core.ErrUnauthenticated
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusUnauthorized, core.ErrInvalidCredential
	case errors.Is(err, auth.ErrUnknownUser):
		return http.StatusUnauthorized, core.ErrUnknownUser
	default:
		return http.StatusInternalServerError, core.ErrStorageFailure
	}
}

// currentUser returns the authenticated caller stored by AuthMiddleware.
func currentUser(c *gin.Context) (store.UserRef, bool) {
	id, ok := c.Get(ContextKeyUserID)
	if !ok {
		return store.UserRef{}, false
	}
	uid, ok := id.(int64)
	if !ok {
		return store.UserRef{}, false
	}
	return store.UserRef{ID: uid, Username: c.GetString(ContextKeyUsername)}, true
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
