package store

import "time"

const (
	KeyWallet             = "wallet:%d"
	KeyGameResult         = "game:result:%s"
	KeyUserCompletedGames = "user:%d:completed_games"
	KeyFairness           = "fairness:%d"
	KeyServerSeed         = "seed:%s"
	KeyRateLimit          = "ratelimit:%d:%s"

	TTLGameResult = 30 * 24 * time.Hour // 30 days
)
