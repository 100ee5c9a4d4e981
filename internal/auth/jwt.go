package auth

import (
	"time"

	"jewelry-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens are issued by the account service; this package only verifies them.
type JWTCustomClaims struct {
	UserID uint            `json:"user_id"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs claims for actor with secret. Used by local tooling and tests.
func GenerateToken(secret string, actor models.Actor, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTCustomClaims{
		UserID: actor.ID,
		Name:   actor.Name,
		Email:  email,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
