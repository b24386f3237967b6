package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/services"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/store"
	"fairplay-casino-backend/internal/table"
)

var errStatus = []struct {
	err    error
	status int
}{
	{games.ErrInvalidParams, http.StatusBadRequest},
	{session.ErrInvalidClientSeed, http.StatusBadRequest},
	{store.ErrInsufficientBalance, http.StatusPaymentRequired},
	{table.ErrNotOwner, http.StatusForbidden},
	{table.ErrNotFound, http.StatusNotFound},
	{services.ErrNoActiveGame, http.StatusNotFound},
	{seeds.ErrUnknownSeed, http.StatusNotFound},
	{session.ErrGameInProgress, http.StatusConflict},
	{session.ErrInLobby, http.StatusConflict},
	{session.ErrClientSeedSpent, http.StatusConflict},
	{services.ErrWrongGame, http.StatusConflict},
	{games.ErrGameOver, http.StatusConflict},
	{games.ErrWrongPhase, http.StatusConflict},
	{games.ErrNotInLobby, http.StatusConflict},
	{games.ErrRoleForbidden, http.StatusConflict},
	{games.ErrLobbyFull, http.StatusConflict},
	{seeds.ErrNotRevealed, http.StatusConflict},
}

// respondError writes the status matching err. Anything unknown is logged
// and hidden behind a generic message.
func respondError(c *gin.Context, log *slog.Logger, err error) {
	for _, e := range errStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": reason(err, e.err)})
			return
		}
	}

	log.Error("request failed",
		sl.String("path", c.FullPath()),
		sl.Int64("user_id", c.GetInt64("user_id")),
		sl.Err(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// reason drops the op prefixes and keeps the part a player can act on.
func reason(err, sentinel error) string {
	if !errors.Is(sentinel, games.ErrInvalidParams) {
		return sentinel.Error()
	}
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

// bindJSON decodes the body into req and answers 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationError(verrs)})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
	return false
}

func validationError(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		field := strings.ToLower(err.Field())
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of: %s", field, err.Param()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", field, err.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", field, err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", field))
		}
	}
	return strings.Join(msgs, ", ")
}
