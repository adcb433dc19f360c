package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"termbroker/internal/auth"
	"termbroker/pkg/models"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func (s *fakeUserStore) Create(user *models.User) error {
	s.users[user.Username] = user
	return nil
}

func (s *fakeUserStore) GetByUsername(username string) (*models.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

func newTestAuthService(t *testing.T) (*auth.AuthService, string) {
	t.Helper()
	store := &fakeUserStore{users: make(map[string]*models.User)}
	svc := auth.NewAuthService("test-secret-key-for-auth-middleware-32b", "termbroker", store)
	_, err := svc.Register(auth.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Sup3r$ecure!"})
	require.NoError(t, err)
	token, err := svc.Login("alice", "Sup3r$ecure!")
	require.NoError(t, err)
	return svc, token
}

func newRouterWithRequireAuth(svc *auth.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireAuth(svc), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		username, _ := GetUsername(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "username": username})
	})
	return router
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	svc, token := newTestAuthService(t)
	router := newRouterWithRequireAuth(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	svc, _ := newTestAuthService(t)
	router := newRouterWithRequireAuth(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "AUTH_HEADER_MISSING")
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	svc, token := newTestAuthService(t)
	router := newRouterWithRequireAuth(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", token) // missing "Bearer " prefix
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_AUTH_HEADER")
}

func TestRequireAuthRejectsGarbageToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	router := newRouterWithRequireAuth(svc)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_TOKEN")
}

func TestOptionalAuthContinuesWithoutToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/maybe", OptionalAuth(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"authenticated":false`)
}

func TestOptionalAuthSetsContextWithValidToken(t *testing.T) {
	svc, token := newTestAuthService(t)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/maybe", OptionalAuth(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": IsAuthenticated(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"authenticated":true`)
}
