package services_test

import (
	"errors"
	"testing"
	"time"

	"fairplay-casino-backend/internal/services"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := services.NewJWTService("secret", time.Hour)

	token, issued, err := svc.GenerateToken(42, "guest_42")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "guest_42" || claims.SessionID != issued.SessionID {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := services.NewJWTService("secret", time.Hour)

	foreign, _, err := services.NewJWTService("other", time.Hour).GenerateToken(1, "a")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := svc.ValidateToken(foreign); !errors.Is(err, services.ErrInvalidToken) {
		t.Errorf("Expected invalid token for a foreign secret, got %v", err)
	}

	expired, _, err := services.NewJWTService("secret", -time.Minute).GenerateToken(1, "a")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := svc.ValidateToken(expired); !errors.Is(err, services.ErrInvalidToken) {
		t.Errorf("Expected invalid token for an expired token, got %v", err)
	}

	if _, err := svc.ValidateToken("not-a-token"); !errors.Is(err, services.ErrInvalidToken) {
		t.Errorf("Expected invalid token, got %v", err)
	}
}

func TestJWTRevoke(t *testing.T) {
	svc := services.NewJWTService("secret", time.Hour)

	token, claims, err := svc.GenerateToken(7, "guest_7")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	other, _, err := svc.GenerateToken(7, "guest_7")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	svc.Revoke(claims.SessionID)

	if _, err := svc.ValidateToken(token); !errors.Is(err, services.ErrTokenRevoked) {
		t.Errorf("Expected revoked token, got %v", err)
	}
	if _, err := svc.ValidateToken(other); err != nil {
		t.Errorf("Other sessions should stay valid, got %v", err)
	}
}
