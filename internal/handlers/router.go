package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/kiko-beam/beamlink/config"
	"github.com/kiko-beam/beamlink/internal/middleware"
)

// NewRouter assembles the full server surface: health, auth, room
// management, the mobile entry descriptor, and the signaling WebSocket.
func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", Login(cfg.JWTSecret))
		api.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), h.CreateRoom)
		api.GET("/rooms/:roomId", h.GetRoom)
		api.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), h.DeleteRoom)
	}

	router.GET("/teleport", h.Teleport)

	// Signaling: connections join rooms by envelope, not by path.
	router.GET("/ws/signal", func(c *gin.Context) {
		h.Relay.Serve(c.Writer, c.Request)
	})

	return router
}
