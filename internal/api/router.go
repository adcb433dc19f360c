package api

import (
	"os"

	"github.com/gin-gonic/gin"

	"termbroker/internal/metrics"
	mw "termbroker/internal/middleware"
	"termbroker/internal/transport"
)

// RouterConfig bundles the pieces NewRouter needs beyond the Server itself.
type RouterConfig struct {
	AllowedOrigins    []string
	RequestsPerMinute int
	Burst             int
}

// NewRouter assembles the full middleware chain and route tree.
func NewRouter(server *Server, wsHandler *transport.Handler, cfg RouterConfig) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	mw.InitRateLimiter(cfg.RequestsPerMinute, cfg.Burst)
	mw.InitAuthRateLimiter()

	router := gin.New()
	router.Use(mw.RequestID())
	router.Use(mw.ErrorHandler())
	router.Use(mw.Recovery())
	router.Use(mw.SecurityHeaders())
	router.Use(mw.CORS(cfg.AllowedOrigins))
	router.Use(mw.RateLimit())
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", server.Health)
	router.GET("/health/deep", server.DeepHealth)
	router.GET("/metrics", metrics.PrometheusHandler())

	authGroup := router.Group("/auth")
	authGroup.Use(mw.AuthRateLimit())
	{
		authGroup.POST("/login", server.Login)
		authGroup.POST("/register", server.Register)
	}

	protected := router.Group("/")
	protected.Use(mw.RequireAuth(server.auth))
	{
		protected.POST("/auth/logout", server.Logout)

		protected.GET("/terminal/sessions", server.ListSessions)
		protected.GET("/terminal/session/:id/status", server.SessionStatus)
		protected.POST("/terminal/cleanup", server.Cleanup)

		protected.GET("/config", server.GetConfig)
		protected.POST("/config", server.UpdateConfig)
	}

	// The WebSocket upgrade authenticates itself via the token query param
	// rather than the Authorization header, so it sits outside RequireAuth.
	router.GET("/terminal/ws/:session_id", wsHandler.ServeTerminal)

	return router
}
