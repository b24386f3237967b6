package middleware

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/config"
	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/services"
)

// AuthMiddleware accepts a bearer token, or a token query parameter for
// websocket clients that cannot set headers.
func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
			if tokenString == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, services.ErrTokenRevoked) {
				msg = "Session has been logged out"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

// rateClass maps a route to the bucket it is counted in. Routes outside
// both buckets are not limited.
func rateClass(path string, cfg *config.Config) (string, int) {
	switch {
	case strings.HasSuffix(path, "/play"), strings.HasSuffix(path, "/start") && strings.Contains(path, "/games/"):
		return "bet", cfg.BetRateLimit
	case strings.HasSuffix(path, "/reveal"),
		strings.HasSuffix(path, "/select"),
		strings.HasSuffix(path, "/upgrade"),
		strings.HasSuffix(path, "/cashout"):
		return "action", cfg.ActionRateLimit
	default:
		return "", 0
	}
}

func RateLimitMiddleware(log *slog.Logger, limiter services.Limiter, cfg *config.Config) gin.HandlerFunc {
	const window = time.Minute

	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.Next()
			return
		}

		action, limit := rateClass(c.Request.URL.Path, cfg)
		if action == "" {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), userID.(int64), action, limit, window)
		if err != nil {
			log.Error("rate limit check failed", sl.String("action", action), sl.Err(err))
		}
		if err != nil || !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": math.Ceil(window.Seconds()),
			})
			return
		}

		c.Next()
	}
}
