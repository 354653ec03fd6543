package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	hub   *core.Hub
	store store.Store
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, st store.Store, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		hub:   hub,
		store: st,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,max=64"`
	Description string `json:"description" binding:"max=500"`
	Category    string `json:"category" binding:"max=64"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	CreatorID   int64            `json:"creatorId"`
	CreatedAt   string           `json:"createdAt"`
	Members     []MemberResponse `json:"members,omitempty"`
}

// MemberResponse is a room member with its live presence.
type MemberResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

func roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Category:    room.Category,
		CreatorID:   room.CreatorID,
		CreatedAt:   room.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func roomsResponse(rooms []*store.Room) []RoomResponse {
	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, roomResponse(room))
	}
	return response
}

// roomIDParam parses the :roomId path parameter.
func roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("roomId"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid room id")
		return 0, false
	}
	return id, true
}

// CreateRoom handles room creation. The creator becomes the first member.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		badRequest(c, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		badRequest(c, "room name is required")
		return
	}

	room, err := h.hub.CreateRoom(c.Request.Context(), &store.Room{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		CreatorID:   user.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists", Code: "room_exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", name).Msg("failed to create room")
		writeCoreError(c, err)
		return
	}

	h.log.Info().Str("room_name", room.Name).Int64("room_id", room.ID).Int64("creator_id", user.ID).Msg("room created")
	c.JSON(http.StatusCreated, roomResponse(room))
}

// ListRooms lists every room.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, roomsResponse(rooms))
}

// GetRoom returns a room with its members.
// GET /api/rooms/:roomId
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeCoreError(c, core.ErrRoomNotFound)
			return
		}
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to get room")
		internalError(c)
		return
	}

	members, err := h.store.ListMembers(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list members")
		internalError(c)
		return
	}

	presence := h.hub.Presence()
	response := roomResponse(room)
	response.Members = make([]MemberResponse, 0, len(members))
	for _, m := range members {
		response.Members = append(response.Members, MemberResponse{
			ID:       m.ID,
			Username: m.Username,
			Online:   presence.IsOnline(m.ID),
		})
	}
	c.JSON(http.StatusOK, response)
}

// JoinRoom adds the caller to a room.
// POST /api/rooms/:roomId/join
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	h.membership(c, h.hub.JoinRoom)
}

// LeaveRoom removes the caller from a room.
// POST /api/rooms/:roomId/leave
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	h.membership(c, h.hub.LeaveRoom)
}

type membershipFunc func(ctx context.Context, user store.UserRef, roomID int64) (*store.Room, error)

func (h *RoomHandlers) membership(c *gin.Context, op membershipFunc) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	room, err := op(c.Request.Context(), user, roomID)
	if err != nil {
		if core.AsCoreError(err).Code == core.ErrCodeStorageFailure {
			h.log.Error().Err(err).Int64("room_id", roomID).Msg("membership change failed")
		}
		writeCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, roomResponse(room))
}
