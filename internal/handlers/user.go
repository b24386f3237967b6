package handlers

import (
	"encoding/binary"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/services"
)

type UserHandler struct {
	log    *slog.Logger
	jwt    *services.JWTService
	engine *services.GameEngine
}

func NewUserHandler(log *slog.Logger, jwt *services.JWTService, engine *services.GameEngine) *UserHandler {
	return &UserHandler{
		log:    log.With(slog.String("component", "handlers.user")),
		jwt:    jwt,
		engine: engine,
	}
}

// guestID derives a positive player id from a random uuid.
func guestID(u uuid.UUID) int64 {
	id := int64(binary.BigEndian.Uint64(u[:8]) >> 1)
	if id == 0 {
		id = 1
	}
	return id
}

// GuestLogin issues a token for a fresh guest player.
func (h *UserHandler) GuestLogin(c *gin.Context) {
	var req models.GuestLoginRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	u := uuid.New()
	userID := guestID(u)
	username := req.Username
	if username == "" {
		username = "guest_" + u.String()[:8]
	}

	token, claims, err := h.jwt.GenerateToken(userID, username)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("guest signed in", sl.Int64("user_id", userID), sl.String("username", username))

	c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User: models.User{
			ID:        userID,
			Username:  username,
			SessionID: claims.SessionID,
			CreatedAt: claims.IssuedAt.Time,
		},
	})
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetInt64("user_id")

	balance, err := h.engine.Balance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	info, err := h.engine.FairnessInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": models.User{
			ID:        userID,
			Username:  c.GetString("username"),
			SessionID: c.GetString("session_id"),
		},
		"wallet":   models.Wallet{UserID: userID, Balance: balance},
		"fairness": info,
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	h.jwt.Revoke(c.GetString("session_id"))
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
