package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"termbroker/pkg/models"
)

// fakeUserStore is an in-memory auth.UserStore for tests.
type fakeUserStore struct {
	byUsername map[string]*models.User
	nextID     uint
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byUsername: make(map[string]*models.User)}
}

func (s *fakeUserStore) Create(user *models.User) error {
	if _, exists := s.byUsername[user.Username]; exists {
		return ErrUserExists
	}
	s.nextID++
	user.ID = s.nextID
	s.byUsername[user.Username] = user
	return nil
}

func (s *fakeUserStore) GetByUsername(username string) (*models.User, error) {
	user, ok := s.byUsername[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func newTestAuthService() (*AuthService, *fakeUserStore) {
	store := newFakeUserStore()
	return NewAuthService("test-secret-at-least-32-bytes-long!!", "termbroker", store), store
}

func TestAuthServiceRegisterThenLogin(t *testing.T) {
	svc, _ := newTestAuthService()

	user, err := svc.Register(RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Sup3r$ecure!",
	})
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.NotEmpty(t, user.PasswordHash)
	require.NotEqual(t, "Sup3r$ecure!", user.PasswordHash)

	token, err := svc.Login("alice", "Sup3r$ecure!")
	require.NoError(t, err)
	require.NotEmpty(t, token)
}

func TestAuthServiceRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Register(RegisterRequest{Username: "alice", Email: "a@example.com", Password: "Sup3r$ecure!"})
	require.NoError(t, err)

	_, err = svc.Register(RegisterRequest{Username: "alice", Email: "b@example.com", Password: "Sup3r$ecure!"})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestAuthServiceRegisterRejectsWeakPassword(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Register(RegisterRequest{Username: "alice", Email: "a@example.com", Password: "short"})
	require.Error(t, err)
}

func TestAuthServiceLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Register(RegisterRequest{Username: "alice", Email: "a@example.com", Password: "Sup3r$ecure!"})
	require.NoError(t, err)

	_, err = svc.Login("alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthServiceLoginRejectsUnknownUser(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Login("ghost", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthServiceValidateTokenRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Register(RegisterRequest{Username: "alice", Email: "a@example.com", Password: "Sup3r$ecure!"})
	require.NoError(t, err)

	token, err := svc.Login("alice", "Sup3r$ecure!")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.ValidateToken("not-a-real-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthServiceBlacklistTokenRevokesImmediately(t *testing.T) {
	svc, _ := newTestAuthService()
	_, err := svc.Register(RegisterRequest{Username: "alice", Email: "a@example.com", Password: "Sup3r$ecure!"})
	require.NoError(t, err)
	token, err := svc.Login("alice", "Sup3r$ecure!")
	require.NoError(t, err)

	require.NoError(t, svc.BlacklistToken(token))

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrTokenBlacklisted)
}
