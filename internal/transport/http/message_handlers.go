package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/proto"
	"github.com/vovakirdan/roomchat/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	searchLimit      = 50
)

// MessageHandlers provides HTTP handlers for messages and notifications.
type MessageHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Text   string `json:"text"`
	RoomID int64  `json:"roomId" binding:"required"`
}

// MessagePageResponse is one page of a room's history, oldest first.
type MessagePageResponse struct {
	Messages    []proto.MessagePayload `json:"messages"`
	Count       int                    `json:"count"`
	TotalPages  int                    `json:"totalPages"`
	CurrentPage int                    `json:"currentPage"`
}

// SearchResponse holds matching messages, newest first.
type SearchResponse struct {
	Messages []proto.MessagePayload `json:"messages"`
	Count    int                    `json:"count"`
}

// NotificationResponse represents a stored notification.
type NotificationResponse struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	RoomID    int64  `json:"roomId"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"createdAt"`
}

// SendMessage posts a message through the fanout engine.
// POST /api/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.hub.SendMessage(c.Request.Context(), user, req.RoomID, req.Text)
	if err != nil {
		if core.AsCoreError(err).Code == core.ErrCodeStorageFailure {
			h.log.Error().Err(err).Int64("room_id", req.RoomID).Msg("failed to send message")
		}
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, messagePayload(msg))
}

// ListRoomMessages returns a page of a room's messages in chronological order.
// GET /api/messages/room/:roomId?page=1&limit=20
func (h *MessageHandlers) ListRoomMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", defaultPageLimit)
	if page < 1 || limit < 1 {
		badRequest(c, "page and limit must be positive")
		return
	}
	limit = min(limit, maxPageLimit)

	ctx := c.Request.Context()
	if !h.roomExists(c, roomID) {
		return
	}

	messages, err := h.store.ListMessages(ctx, roomID, limit, (page-1)*limit)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		internalError(c)
		return
	}
	total, err := h.store.CountMessages(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to count messages")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, MessagePageResponse{
		Messages:    messagesPayload(messages),
		Count:       len(messages),
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
	})
}

// SearchMessages finds messages containing a term, optionally within one room.
// GET /api/messages/search?query=term&roomId=1
func (h *MessageHandlers) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		badRequest(c, "search query is required")
		return
	}

	var roomID *int64
	if raw := c.Query("roomId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid room id")
			return
		}
		if !h.roomExists(c, id) {
			return
		}
		roomID = &id
	}

	messages, err := h.store.SearchMessages(c.Request.Context(), query, roomID, searchLimit)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("failed to search messages")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, SearchResponse{Messages: messagesPayload(messages), Count: len(messages)})
}

// ListNotifications returns the caller's notifications, newest first.
// GET /api/notifications
func (h *MessageHandlers) ListNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}

	notes, err := h.store.ListNotifications(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list notifications")
		internalError(c)
		return
	}

	response := make([]NotificationResponse, 0, len(notes))
	for _, n := range notes {
		response = append(response, NotificationResponse{
			ID:        n.ID,
			Message:   n.Text,
			RoomID:    n.RoomID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}

// MarkNotificationsRead flags every unread notification of the caller as read.
// POST /api/messages/notifications/read
func (h *MessageHandlers) MarkNotificationsRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}

	updated, err := h.store.MarkNotificationsRead(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to mark notifications read")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *MessageHandlers) roomExists(c *gin.Context, roomID int64) bool {
	_, err := h.store.GetRoomByID(c.Request.Context(), roomID)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrNotFound) {
		writeCoreError(c, core.ErrRoomNotFound)
		return false
	}
	h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to get room")
	internalError(c)
	return false
}

func messagesPayload(messages []*store.Message) []proto.MessagePayload {
	out := make([]proto.MessagePayload, 0, len(messages))
	for _, m := range messages {
		out = append(out, messagePayload(m))
	}
	return out
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
