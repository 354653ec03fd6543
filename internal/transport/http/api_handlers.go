package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/store"
)

// AuthHandlers provides HTTP handlers for account endpoints.
type AuthHandlers struct {
	authService *auth.Service
	store       store.Store
	log         *zerolog.Logger
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(authService *auth.Service, st store.Store, logger *zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		store:       st,
		log:         logger,
	}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ProfileResponse is the caller's account with its rooms.
type ProfileResponse struct {
	User  UserResponse   `json:"user"`
	Rooms []RoomResponse `json:"rooms"`
}

// Register handles user registration.
// POST /api/auth/register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		badRequest(c, "invalid request body")
		return
	}

	token, user, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			badRequest(c, err.Error())
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists", Code: "user_exists"})
		default:
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
			internalError(c)
		}
		return
	}

	h.log.Info().Str("username", user.Username).Int64("user_id", user.ID).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: UserResponse{ID: user.ID, Username: user.Username}})
}

// Login handles user login.
// POST /api/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		badRequest(c, "invalid request body")
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrLoginFailed) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid username or password", Code: "login_failed"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		internalError(c)
		return
	}

	h.log.Info().Str("username", user.Username).Msg("user logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token, User: UserResponse{ID: user.ID, Username: user.Username}})
}

// Profile returns the authenticated user and the rooms it belongs to.
// GET /api/auth/profile
func (h *AuthHandlers) Profile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		internalError(c)
		return
	}

	rooms, err := h.store.ListUserRooms(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list user rooms")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{
		User:  UserResponse{ID: user.ID, Username: user.Username},
		Rooms: roomsResponse(rooms),
	})
}
