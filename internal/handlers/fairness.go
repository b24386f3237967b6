package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/services"
)

type FairnessHandler struct {
	log    *slog.Logger
	engine *services.GameEngine
}

func NewFairnessHandler(log *slog.Logger, engine *services.GameEngine) *FairnessHandler {
	return &FairnessHandler{
		log:    log.With(slog.String("component", "handlers.fairness")),
		engine: engine,
	}
}

func (h *FairnessHandler) GetInfo(c *gin.Context) {
	info, err := h.engine.FairnessInfo(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fairness": info})
}

func (h *FairnessHandler) SetClientSeed(c *gin.Context) {
	var req models.ClientSeedRequest
	if !bindJSON(c, &req) {
		return
	}

	snap, err := h.engine.SetClientSeed(c.Request.Context(), c.GetInt64("user_id"), req.ClientSeed)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fairness": snap})
}

func (h *FairnessHandler) RevealSeed(c *gin.Context) {
	seed, err := h.engine.RevealSeed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "seed": seed})
}

func (h *FairnessHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	check, err := h.engine.Verify(req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "verification": check})
}
