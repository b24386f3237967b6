package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/config"
	"fairplay-casino-backend/internal/games"
	"fairplay-casino-backend/internal/middleware"
	"fairplay-casino-backend/internal/services"
)

type RouterDeps struct {
	Log     *slog.Logger
	Config  *config.Config
	Engine  *services.GameEngine
	JWT     *services.JWTService
	Limiter services.Limiter
	Hub     *WebSocketHub
}

// NewRouter wires every route.
func NewRouter(d RouterDeps) *gin.Engine {
	userHandler := NewUserHandler(d.Log, d.JWT, d.Engine)
	gameHandler := NewGameHandler(d.Log, d.Engine)
	lobbyHandler := NewLobbyHandler(d.Log, d.Engine)
	fairnessHandler := NewFairnessHandler(d.Log, d.Engine)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(d.Log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/auth/guest", userHandler.GuestLogin)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(d.JWT))
	protected.Use(middleware.RateLimitMiddleware(d.Log, d.Limiter, d.Config))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", d.Hub.HandleWebSocket)

		fairness := protected.Group("/fairness")
		{
			fairness.GET("", fairnessHandler.GetInfo)
			fairness.POST("/client-seed", fairnessHandler.SetClientSeed)
			fairness.GET("/seeds/:id", fairnessHandler.RevealSeed)
			fairness.POST("/verify", fairnessHandler.Verify)
		}

		g := protected.Group("/games")
		{
			g.GET("/balance", gameHandler.GetBalance)
			g.GET("/active", gameHandler.GetActiveGame)
			g.GET("/history", gameHandler.GetGameHistory)

			g.POST("/coinflip/play", gameHandler.PlayCoinFlip)
			g.POST("/dice/play", gameHandler.PlayDice)
			g.POST("/limbo/play", gameHandler.PlayLimbo)
			g.POST("/plinko/play", gameHandler.PlayPlinko)

			g.POST("/crash/start", gameHandler.StartCrash)
			g.POST("/crash/cashout", gameHandler.CashOut(games.KindCrash))

			g.POST("/mines/start", gameHandler.StartMines)
			g.POST("/mines/reveal", gameHandler.RevealMine)
			g.POST("/mines/cashout", gameHandler.CashOut(games.KindMines))

			g.POST("/towers/start", gameHandler.StartTowers)
			g.POST("/towers/select", gameHandler.SelectTower)
			g.POST("/towers/cashout", gameHandler.CashOut(games.KindTowers))

			g.POST("/upgrader/start", gameHandler.StartUpgrader)
			g.POST("/upgrader/upgrade", gameHandler.Upgrade)
			g.POST("/upgrader/cashout", gameHandler.CashOut(games.KindUpgrader))
		}

		lobbies := protected.Group("/lobbies")
		{
			lobbies.GET("", lobbyHandler.List)
			lobbies.POST("", lobbyHandler.Create)
			lobbies.GET("/:id", lobbyHandler.Get)
			lobbies.POST("/:id/join", lobbyHandler.Join)
			lobbies.POST("/:id/kill", lobbyHandler.Kill)
			lobbies.POST("/:id/accuse", lobbyHandler.Accuse)
			lobbies.POST("/:id/leave", lobbyHandler.Leave)
		}
	}

	return router
}
