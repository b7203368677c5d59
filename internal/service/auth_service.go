package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/quizrunner/internal/config"
)

// TokenType distinguishes learner vs staff tokens.
type TokenType string

const (
	TokenTypeLearner TokenType = "learner"
	TokenTypeStaff   TokenType = "staff"
)

// Claims extends JWT standard claims with platform-specific fields.
// Tokens are issued by the platform; the gateway only verifies them and
// forwards the learner's token to the backend unchanged.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserID      int       `json:"user_id"`
	Permissions []string  `json:"permissions,omitempty"` // Staff only
}

// HasPermission reports whether the claims carry the permission code.
func (c *Claims) HasPermission(code string) bool {
	for _, p := range c.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// AuthService verifies platform tokens.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// GenerateToken signs a token with the shared platform secret. Used by
// tooling and tests; production tokens come from the platform login.
func (s *AuthService) GenerateToken(tokenType TokenType, userID int, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType:   tokenType,
		UserID:      userID,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token has no user")
	}

	return claims, nil
}
