package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

type Claims struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// JWTService issues HS256 tokens. Revoked session ids are remembered until
// their token would have expired anyway.
type JWTService struct {
	secret  []byte
	expiry  time.Duration
	revoked *cache.Cache
}

func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{
		secret:  []byte(secret),
		expiry:  expiry,
		revoked: cache.New(expiry, time.Hour),
	}
}

func (s *JWTService) GenerateToken(userID int64, username string) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if _, revoked := s.revoked.Get(claims.SessionID); revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke invalidates every token carrying sessionID.
func (s *JWTService) Revoke(sessionID string) {
	s.revoked.Set(sessionID, struct{}{}, cache.DefaultExpiration)
}
