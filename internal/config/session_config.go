package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

// GetTokenRefreshThreshold is the remaining validity below which the identity
// token is proactively refreshed.
func (Session) GetTokenRefreshThreshold() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_THRESHOLD", 30*time.Second)
}

func (Session) GetTokenExchangePath() string {
	return GetEnv("TOKEN_EXCHANGE_PATH", "/api/auth/generate-token")
}

func (Session) GetTokenExchangeTimeout() time.Duration {
	return GetEnvDuration("TOKEN_EXCHANGE_TIMEOUT", 10*time.Second)
}

type Cache struct{}

var _ CacheConfig = Cache{}

// GetKeepUnusedDataFor is how long a cache entry survives after its last
// subscriber goes away.
func (Cache) GetKeepUnusedDataFor() time.Duration {
	return GetEnvDuration("CACHE_KEEP_UNUSED_FOR", 60*time.Second)
}

func (Cache) GetMaxUnusedEntries() int {
	return GetEnvInt("CACHE_MAX_UNUSED_ENTRIES", 256)
}

func (Cache) GetDefaultPageSize() int {
	return GetEnvInt("DEFAULT_PAGE_SIZE", 10)
}
