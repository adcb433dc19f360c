// Package api provides the Gin HTTP handlers and router for the control
// endpoints: authentication, session listing/status, and runtime config.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"termbroker/internal/auth"
	"termbroker/internal/config"
	"termbroker/internal/db"
	"termbroker/internal/middleware"
	"termbroker/internal/terminal"
)

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// Server holds the dependencies the control-endpoint handlers need.
type Server struct {
	db      *db.Database
	auth    *auth.AuthService
	manager *terminal.Manager
	runtime *config.RuntimeStore
	version string
}

// NewServer builds a Server.
func NewServer(database *db.Database, authService *auth.AuthService, manager *terminal.Manager, runtime *config.RuntimeStore) *Server {
	return &Server{
		db:      database,
		auth:    authService,
		manager: manager,
		runtime: runtime,
		version: "1.0.0",
	}
}

// Health responds quickly for load balancer checks.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.version})
}

// DeepHealth additionally pings the database.
func (s *Server) DeepHealth(c *gin.Context) {
	if err := s.db.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected", "version": s.version})
}

// Login handles POST /auth/login.
func (s *Server) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "AUTH_FAILED"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}

// Register handles account creation.
func (s *Server) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	user, err := s.auth.Register(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "REGISTRATION_FAILED"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username, "email": user.Email})
}

// Logout blacklists the caller's current token.
func (s *Server) Logout(c *gin.Context) {
	token, ok := middleware.GetRawToken(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no token present", "code": "INVALID_REQUEST"})
		return
	}
	_ = s.auth.BlacklistToken(token)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// listedSessionView is the JSON shape for GET /terminal/sessions.
type listedSessionView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	LastActivity string `json:"last_activity"`
	CreatedAt    string `json:"created_at"`
	Running      bool   `json:"running"`
	Rows         uint16 `json:"rows"`
	Cols         uint16 `json:"cols"`
}

// ListSessions handles GET /terminal/sessions, scoped to the caller.
func (s *Server) ListSessions(c *gin.Context) {
	username, _ := middleware.GetUsername(c)

	sessions, err := s.manager.List(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "LIST_FAILED"})
		return
	}

	views := make([]listedSessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, listedSessionView{
			ID:           sess.ID,
			Name:         sess.Name,
			Username:     sess.Owner,
			LastActivity: sess.LastActivity.Format("2006-01-02T15:04:05Z07:00"),
			CreatedAt:    sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Running:      sess.Running,
			Rows:         sess.Rows,
			Cols:         sess.Cols,
		})
	}
	c.JSON(http.StatusOK, views)
}

// SessionStatus handles GET /terminal/session/{id}/status.
func (s *Server) SessionStatus(c *gin.Context) {
	id := c.Param("id")
	username, _ := middleware.GetUsername(c)

	if sess, ok := s.manager.Get(id); ok {
		if sess.Owner != username {
			c.JSON(http.StatusNotFound, gin.H{"exists": false})
			return
		}
		snap := sess.Snapshot()
		alive := sess.IsAlive()
		c.JSON(http.StatusOK, gin.H{
			"exists":                true,
			"alive":                 alive,
			"last_activity":         snap.LastActivity,
			"connected_clients":     snap.ConnectedClients,
			"running_in_background": alive,
			"rows":                  snap.Rows,
			"cols":                  snap.Cols,
			"pid":                   snap.PID,
		})
		return
	}

	sessions, err := s.manager.List(c.Request.Context(), username)
	if err == nil {
		for _, sess := range sessions {
			if sess.ID == id {
				c.JSON(http.StatusOK, gin.H{
					"exists":                sess.Active,
					"alive":                 false,
					"last_activity":         sess.LastActivity,
					"connected_clients":     0,
					"running_in_background": false,
					"rows":                  sess.Rows,
					"cols":                  sess.Cols,
					"pid":                   sess.PID,
				})
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"exists": false})
}

// Cleanup handles POST /terminal/cleanup.
func (s *Server) Cleanup(c *gin.Context) {
	s.manager.Cleanup(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "cleanup complete"})
}

// GetConfig handles GET /config.
func (s *Server) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.runtime.Snapshot(c.Request.Context()))
}

// configUpdateRequest is the body of POST /config. Zero/absent fields leave
// the corresponding setting unchanged.
type configUpdateRequest struct {
	SessionTimeoutSeconds int `json:"session_timeout_seconds"`
	BufferSize            int `json:"buffer_size"`
}

// UpdateConfig handles POST /config.
func (s *Server) UpdateConfig(c *gin.Context) {
	var req configUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	ctx := c.Request.Context()
	if req.SessionTimeoutSeconds > 0 {
		if err := s.runtime.SetSessionTimeout(ctx, secondsToDuration(req.SessionTimeoutSeconds)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "CONFIG_UPDATE_FAILED"})
			return
		}
	}
	if req.BufferSize > 0 {
		if err := s.runtime.SetBufferSize(ctx, req.BufferSize); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "CONFIG_UPDATE_FAILED"})
			return
		}
	}

	c.JSON(http.StatusOK, s.runtime.Snapshot(ctx))
}
