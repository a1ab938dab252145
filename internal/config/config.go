package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	IdentityConfig
	SessionConfig
	CacheConfig
	BackendConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetMockBackendAddr() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// IdentityConfig describes the identity provider the console logs in against.
// Every value is required; see ValidateIdentity.
type IdentityConfig interface {
	GetIdentityProviderURL() string
	GetRealm() string
	GetClientID() string
	GetRedirectURI() string
	GetPKCEMethod() string
}

type SessionConfig interface {
	GetTokenRefreshThreshold() time.Duration
	GetTokenExchangePath() string
	GetTokenExchangeTimeout() time.Duration
}

type CacheConfig interface {
	GetKeepUnusedDataFor() time.Duration
	GetMaxUnusedEntries() int
	GetDefaultPageSize() int
}

type BackendConfig interface {
	GetDashboardURL() string
	GetRemoteAPIURL() string
	GetServiceAccount() ServiceAccount
}

type mainConfig struct {
	EnvVars
	Cors
	Identity
	Session
	Cache
	Backend
}

func New() Config {
	return mainConfig{}
}
