package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/services"
)

type LobbyHandler struct {
	log    *slog.Logger
	engine *services.GameEngine
}

func NewLobbyHandler(log *slog.Logger, engine *services.GameEngine) *LobbyHandler {
	return &LobbyHandler{
		log:    log.With(slog.String("component", "handlers.lobby")),
		engine: engine,
	}
}

func (h *LobbyHandler) List(c *gin.Context) {
	lobbies := h.engine.ListLobbies()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"lobbies": lobbies,
		"count":   len(lobbies),
	})
}

func (h *LobbyHandler) Create(c *gin.Context) {
	view, err := h.engine.CreateLobby(c.Request.Context(), c.GetInt64("user_id"), c.GetString("username"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "lobby": view})
}

func (h *LobbyHandler) Get(c *gin.Context) {
	view, err := h.engine.GetLobby(c.Request.Context(), c.GetInt64("user_id"), c.Param("id"))
	h.respond(c, view, err)
}

func (h *LobbyHandler) Join(c *gin.Context) {
	view, err := h.engine.JoinLobby(c.Request.Context(), c.GetInt64("user_id"), c.GetString("username"), c.Param("id"))
	h.respond(c, view, err)
}

func (h *LobbyHandler) Kill(c *gin.Context) {
	var req models.LobbyTargetRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.engine.Kill(c.Request.Context(), c.GetInt64("user_id"), c.Param("id"), req.TargetID)
	h.respond(c, view, err)
}

func (h *LobbyHandler) Accuse(c *gin.Context) {
	var req models.LobbyTargetRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.engine.Accuse(c.Request.Context(), c.GetInt64("user_id"), c.Param("id"), req.TargetID)
	h.respond(c, view, err)
}

func (h *LobbyHandler) Leave(c *gin.Context) {
	if err := h.engine.LeaveLobby(c.Request.Context(), c.GetInt64("user_id"), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *LobbyHandler) respond(c *gin.Context, view *services.LobbyView, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lobby": view})
}
