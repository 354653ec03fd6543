package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/config"
	"github.com/vovakirdan/roomchat/internal/core"
	"github.com/vovakirdan/roomchat/internal/store"
)

// NewServer builds an HTTP server with the websocket endpoint and the REST API.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	ws := NewWSHandler(hub, WSOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		RatePerMinute:   cfg.RatePerMinute,
	}, logger)
	router.GET("/ws", ws.Handle)

	authHandlers := NewAuthHandlers(authService, st, logger)
	roomHandlers := NewRoomHandlers(hub, st, logger)
	messageHandlers := NewMessageHandlers(hub, st, logger)
	userHandlers := NewUserHandlers(hub, st, logger)

	api := router.Group("/api")
	{
		api.POST("/auth/register", authHandlers.Register)
		api.POST("/auth/login", authHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		{
			protected.GET("/auth/profile", authHandlers.Profile)

			protected.POST("/rooms", roomHandlers.CreateRoom)
			protected.GET("/rooms", roomHandlers.ListRooms)
			protected.GET("/rooms/:roomId", roomHandlers.GetRoom)
			protected.POST("/rooms/:roomId/join", roomHandlers.JoinRoom)
			protected.POST("/rooms/:roomId/leave", roomHandlers.LeaveRoom)

			protected.POST("/messages", messageHandlers.SendMessage)
			protected.GET("/messages/room/:roomId", messageHandlers.ListRoomMessages)
			protected.GET("/messages/search", messageHandlers.SearchMessages)
			protected.POST("/messages/notifications/read", messageHandlers.MarkNotificationsRead)
			protected.GET("/notifications", messageHandlers.ListNotifications)

			protected.GET("/users/online", userHandlers.OnlineUsers)
		}
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
