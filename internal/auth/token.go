package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type TokenType string

const (
	TokenTypeUndefined TokenType = ""
	TokenTypeUser      TokenType = "user"
	// TokenTypeAdmin is for the delivery worker and operators.
	TokenTypeAdmin TokenType = "admin"
)

// TokenSecretKey signs and verifies tokens. Set from configuration at startup.
var TokenSecretKey string

// TokenClaims identifies a chat user. Subject holds the user id.
type TokenClaims struct {
	Type TokenType `json:"type"`
	Name string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *TokenClaims) UserID() string {
	return c.Subject
}

func GenerateToken(userID, name string, tokenType TokenType, dur time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}

	now := time.Now()
	claims := TokenClaims{
		Type: tokenType,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(dur)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(TokenSecretKey))
}

func VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Wrapf(ErrInvalidSigningMethod, "%v", token.Header["alg"])
		}
		return []byte(TokenSecretKey), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
