package config

import "strings"

// ServiceAccount is the fixed credential the proxy presents to the backend's
// token issuance endpoint.
type ServiceAccount struct {
	Realm    string `json:"realm"`
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
}

type Backend struct{}

var _ BackendConfig = Backend{}

// GetDashboardURL is where the console sends its /api requests (the proxy).
func (Backend) GetDashboardURL() string {
	return strings.TrimSuffix(GetEnv("DASHBOARD_URL", "http://localhost:3000"), "/")
}

// GetRemoteAPIURL is the upstream REST backend. Empty means unconfigured.
func (Backend) GetRemoteAPIURL() string {
	return strings.TrimSuffix(GetEnv("API_REMOTE_URL", ""), "/")
}

func (Backend) GetServiceAccount() ServiceAccount {
	return ServiceAccount{
		Realm:    GetEnv("SERVICE_ACCOUNT_REALM", "master"),
		Username: GetEnv("SERVICE_ACCOUNT_USERNAME", ""),
		Password: GetEnv("SERVICE_ACCOUNT_PASSWORD", ""),
		ClientID: GetEnv("SERVICE_ACCOUNT_CLIENT_ID", ""),
	}
}
