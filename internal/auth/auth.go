package auth

import (
	"errors"
	"sync"
	"time"

	"termbroker/pkg/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenBlacklisted   = errors.New("token has been revoked")
	ErrUserExists         = errors.New("user already exists")
)

// TokenBlacklist tracks access tokens revoked before their natural expiry
// (logout), swept periodically so it never grows unbounded.
type TokenBlacklist struct {
	tokens map[string]time.Time // token -> original expiry
	mu     sync.RWMutex
	stopCh chan struct{}
}

var (
	tokenBlacklist     *TokenBlacklist
	tokenBlacklistOnce sync.Once
)

func sharedBlacklist() *TokenBlacklist {
	tokenBlacklistOnce.Do(func() {
		tokenBlacklist = &TokenBlacklist{
			tokens: make(map[string]time.Time),
			stopCh: make(chan struct{}),
		}
		go tokenBlacklist.cleanupRoutine()
	})
	return tokenBlacklist
}

func (tb *TokenBlacklist) Add(token string, expiresAt time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens[token] = expiresAt
}

func (tb *TokenBlacklist) IsBlacklisted(token string) bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	_, ok := tb.tokens[token]
	return ok
}

func (tb *TokenBlacklist) cleanupRoutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.cleanup()
		case <-tb.stopCh:
			return
		}
	}
}

func (tb *TokenBlacklist) cleanup() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	for token, exp := range tb.tokens {
		if now.After(exp) {
			delete(tb.tokens, token)
		}
	}
}

// UserStore is the persistence boundary AuthService needs from db.Database.
type UserStore interface {
	Create(user *models.User) error
	GetByUsername(username string) (*models.User, error)
}

// JWTClaims is what ValidateToken hands back to callers: the subset of
// auth.Claims a request handler actually needs.
type JWTClaims struct {
	UserID   uint
	Username string
	Raw      string
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the body of an account-creation request.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthService wires password hashing, JWT issuance and the token
// blacklist together against a UserStore.
type AuthService struct {
	jwt       *JWTService
	passwords *PasswordService
	users     UserStore
	blacklist *TokenBlacklist
}

// NewAuthService builds an AuthService. jwtSecret and issuer configure the
// underlying JWTService.
func NewAuthService(jwtSecret, issuer string, users UserStore) *AuthService {
	return &AuthService{
		jwt:       NewJWTService(jwtSecret, issuer),
		passwords: NewPasswordService(),
		users:     users,
		blacklist: sharedBlacklist(),
	}
}

// Login verifies username/password and issues a single access token.
func (a *AuthService) Login(username, password string) (string, error) {
	user, err := a.users.GetByUsername(username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", ErrInvalidCredentials
	}
	ok, err := a.passwords.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return "", ErrInvalidCredentials
	}
	return a.jwt.GenerateAccessToken(user.ID, user.Username)
}

// Register creates a new account with a hashed password.
func (a *AuthService) Register(req RegisterRequest) (*models.User, error) {
	if err := a.passwords.ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}
	if _, err := a.users.GetByUsername(req.Username); err == nil {
		return nil, ErrUserExists
	}
	hash, err := a.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := a.users.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ValidateToken checks signature, expiry and the blacklist.
func (a *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	if a.blacklist.IsBlacklisted(tokenString) {
		return nil, ErrTokenBlacklisted
	}
	claims, err := a.jwt.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}
	return &JWTClaims{UserID: claims.UserID, Username: claims.Username, Raw: tokenString}, nil
}

// BlacklistToken revokes tokenString immediately (logout).
func (a *AuthService) BlacklistToken(tokenString string) error {
	claims, err := a.jwt.ValidateAccessToken(tokenString)
	expiry := time.Now().Add(TokenTTL)
	if err == nil && claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	a.blacklist.Add(tokenString, expiry)
	return nil
}

// PasswordStrengthCheck exposes the password policy to registration forms.
func (a *AuthService) PasswordStrengthCheck(password string) error {
	return a.passwords.ValidatePasswordStrength(password)
}
