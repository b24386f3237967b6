package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/config"
	"fairplay-casino-backend/internal/handlers"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/seeds"
	"fairplay-casino-backend/internal/services"
	"fairplay-casino-backend/internal/session"
	"fairplay-casino-backend/internal/store"
	"fairplay-casino-backend/internal/table"
)

const (
	sweepEvery      = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	if envErr != nil {
		log.Debug("no .env file found, using environment variables")
	}
	log.Info("starting server", slog.String("env", cfg.Env), slog.String("store", cfg.StoreDriver))

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	mgr, err := seeds.NewManager(log, st, cfg.SeedRotateEvery)
	if err != nil {
		return err
	}

	engine := services.NewGameEngine(
		log,
		st,
		session.NewRegistry(log, st, mgr),
		table.New(),
		mgr,
		services.Options{CrashTick: cfg.CrashTick, LobbyCountdown: cfg.LobbyCountdown},
	)
	mgr.OnRotate(engine.OnSeedRotated)
	mgr.OnReveal(engine.OnSeedRevealed)

	hub := handlers.NewWebSocketHub(log, engine)
	engine.SetBroadcaster(hub)

	var limiter services.Limiter = services.NewMemoryLimiter()
	if rdb, ok := st.(*store.Redis); ok {
		limiter = rdb
	}

	go hub.Run(ctx)
	go mgr.Run(ctx)
	go engine.RunSweeper(ctx, sweepEvery, cfg.StaleGameAge)

	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Log:     log,
		Config:  cfg,
		Engine:  engine,
		JWT:     services.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry),
		Limiter: limiter,
		Hub:     hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}
