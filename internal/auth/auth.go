package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	AccountID string `json:"accountId"`
	Admin     bool   `json:"admin,omitempty"`
	jwt.StandardClaims
}

// Manager signs and validates session tokens. The secret comes from
// configuration, never from source.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

func (m *Manager) GenerateToken(accountID string, admin bool) (string, error) {
	claims := Claims{
		AccountID: accountID,
		Admin:     admin,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(m.ttl).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
