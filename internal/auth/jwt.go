package auth

import (
	"errors"
	"time"

	"storage-backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	CustomerID int64  `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts validated claims into the caller capability
func (c *Claims) Principal() Principal {
	return Principal{UserID: c.UserID, Role: c.Role, CustomerID: c.CustomerID}
}

type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewJWTManager(cfg *config.Config) *JWTManager {
	return &JWTManager{
		secret: []byte(cfg.JWT.Secret),
		issuer: cfg.JWT.Issuer,
		ttl:    time.Duration(cfg.JWT.ExpirationHours) * time.Hour,
	}
}

// GenerateToken issues a token for p. Login itself happens elsewhere; this is
// used by the token command and tests.
func (j *JWTManager) GenerateToken(p Principal) (string, error) {
	now := time.Now()

	claims := &Claims{
		UserID:     p.UserID,
		Role:       p.Role,
		CustomerID: p.CustomerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken verifies a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return j.secret, nil
	}, jwt.WithIssuer(j.issuer))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
