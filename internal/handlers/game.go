package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/services"
)

type GameHandler struct {
	log    *slog.Logger
	engine *services.GameEngine
}

func NewGameHandler(log *slog.Logger, engine *services.GameEngine) *GameHandler {
	return &GameHandler{
		log:    log.With(slog.String("component", "handlers.game")),
		engine: engine,
	}
}

func (h *GameHandler) PlayCoinFlip(c *gin.Context) {
	var req models.CoinFlipRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.PlayCoinFlip(c.Request.Context(), c.GetInt64("user_id"), req.Amount, req.Side)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) PlayDice(c *gin.Context) {
	var req models.DiceRequest
	if !bindJSON(c, &req) {
		return
	}

	p := games.DiceParams{Target: req.Target, RollOver: req.RollOver}
	res, err := h.engine.PlayDice(c.Request.Context(), c.GetInt64("user_id"), req.Amount, p)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) PlayLimbo(c *gin.Context) {
	var req models.LimboRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.PlayLimbo(c.Request.Context(), c.GetInt64("user_id"), req.Amount, req.Target)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) PlayPlinko(c *gin.Context) {
	var req models.PlinkoRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.PlayPlinko(c.Request.Context(), c.GetInt64("user_id"), req.Amount, req.Risk)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) StartCrash(c *gin.Context) {
	var req models.StakeRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.engine.StartCrash(c.Request.Context(), c.GetInt64("user_id"), req.Amount)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) StartMines(c *gin.Context) {
	var req models.MinesStartRequest
	if !bindJSON(c, &req) {
		return
	}

	p := games.MinesParams{GridSize: req.GridSize, MineCount: req.MineCount}
	state, err := h.engine.StartMines(c.Request.Context(), c.GetInt64("user_id"), req.Amount, p)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) StartTowers(c *gin.Context) {
	var req models.TowersStartRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.engine.StartTowers(c.Request.Context(), c.GetInt64("user_id"), req.Amount, req.Difficulty)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) StartUpgrader(c *gin.Context) {
	var req models.StakeRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.engine.StartUpgrader(c.Request.Context(), c.GetInt64("user_id"), req.Amount)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) RevealMine(c *gin.Context) {
	var req models.MinesRevealRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.RevealMine(c.Request.Context(), c.GetInt64("user_id"), req.GameID, *req.Cell)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) SelectTower(c *gin.Context) {
	var req models.TowersSelectRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.SelectTower(c.Request.Context(), c.GetInt64("user_id"), req.GameID, *req.Block)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *GameHandler) Upgrade(c *gin.Context) {
	var req models.GameActionRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.engine.Upgrade(c.Request.Context(), c.GetInt64("user_id"), req.GameID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

// CashOut returns the cash-out handler for one stateful game kind.
func (h *GameHandler) CashOut(kind games.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.GameActionRequest
		if !bindJSON(c, &req) {
			return
		}

		res, err := h.engine.CashOut(c.Request.Context(), c.GetInt64("user_id"), kind, req.GameID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
	}
}

func (h *GameHandler) GetActiveGame(c *gin.Context) {
	state, err := h.engine.ActiveGame(c.Request.Context(), c.GetInt64("user_id"))
	if errors.Is(err, services.ErrNoActiveGame) {
		c.JSON(http.StatusOK, gin.H{"success": true, "game": nil})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "game": state})
}

func (h *GameHandler) GetGameHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	records, err := h.engine.History(c.Request.Context(), c.GetInt64("user_id"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"games":   records,
		"count":   len(records),
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	balance, err := h.engine.Balance(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, models.BalanceResponse{Balance: balance})
}
