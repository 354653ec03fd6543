package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// UserHandlers provides HTTP handlers for user presence.
type UserHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// OnlineUsers lists the users that currently hold at least one connection.
// GET /api/users/online
func (h *UserHandlers) OnlineUsers(c *gin.Context) {
	ctx := c.Request.Context()
	ids := h.hub.Presence().OnlineUserIDs()

	response := make([]UserResponse, 0, len(ids))
	for _, id := range ids {
		u, err := h.store.GetUserByID(ctx, id)
		if err != nil {
			// A user deleted while connected is skipped.
			h.log.Debug().Err(err).Int64("user_id", id).Msg("online user lookup failed")
			continue
		}
		response = append(response, UserResponse{ID: u.ID, Username: u.Username})
	}

	c.JSON(http.StatusOK, response)
}
