package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bh-premnath-git/bhadminui/backend"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	"github.com/bh-premnath-git/bhadminui/server"
	"github.com/bh-premnath-git/bhadminui/tenants"
)

type fixture struct {
	backend *backend.Backend
	proxy   *server.Server
	url     string
}

func setServiceAccount(t *testing.T) {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("SERVICE_ACCOUNT_REALM", "master")
	t.Setenv("SERVICE_ACCOUNT_USERNAME", "svc-admin")
	t.Setenv("SERVICE_ACCOUNT_PASSWORD", "svc-secret")
	t.Setenv("SERVICE_ACCOUNT_CLIENT_ID", "svc-admin")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	setServiceAccount(t)
	cfg := config.New()

	b, err := backend.New(cfg.GetServiceAccount(), backend.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	upstream := httptest.NewServer(b)
	t.Cleanup(upstream.Close)
	t.Setenv("API_REMOTE_URL", upstream.URL)

	s, err := server.New(cfg, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	t.Cleanup(proxy.Close)

	return &fixture{backend: b, proxy: s, url: proxy.URL}
}

func do(t *testing.T, method, url, authorization string, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func (f *fixture) backendToken(t *testing.T) string {
	t.Helper()
	status, body := do(t, http.MethodPost, f.url+server.RouteGenerateToken, "Bearer identity-token", "")
	require.Equal(t, http.StatusOK, status, body)
	var out backend.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.NotEmpty(t, out.AccessToken.AccessToken)
	return "Bearer " + out.AccessToken.AccessToken
}

func TestGenerateToken(t *testing.T) {
	t.Run("missing authorization", func(t *testing.T) {
		f := newFixture(t)
		status, body := do(t, http.MethodPost, f.url+server.RouteGenerateToken, "", "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.JSONEq(t, `{"error":"Unauthorized"}`, body)
	})

	t.Run("remote not configured", func(t *testing.T) {
		f := newFixture(t)
		t.Setenv("API_REMOTE_URL", "")
		status, body := do(t, http.MethodPost, f.url+server.RouteGenerateToken, "Bearer x", "")
		require.Equal(t, http.StatusInternalServerError, status)
		require.JSONEq(t, `{"error":"API URL is not configured"}`, body)
	})

	t.Run("exchanges with the service account", func(t *testing.T) {
		f := newFixture(t)
		token := f.backendToken(t)
		status, _ := do(t, http.MethodGet, f.url+server.RouteRoles, token, "")
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("upstream rejection is wrapped", func(t *testing.T) {
		f := newFixture(t)
		t.Setenv("SERVICE_ACCOUNT_PASSWORD", "rotated")
		status, body := do(t, http.MethodPost, f.url+server.RouteGenerateToken, "Bearer identity-token", "")
		require.Equal(t, http.StatusUnauthorized, status)
		require.JSONEq(t, `{"error":{"detail":"Invalid user credentials"}}`, body)
	})

	t.Run("upstream unreachable", func(t *testing.T) {
		f := newFixture(t)
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		t.Setenv("API_REMOTE_URL", dead.URL)
		status, body := do(t, http.MethodPost, f.url+server.RouteGenerateToken, "Bearer identity-token", "")
		require.Equal(t, http.StatusInternalServerError, status)
		require.JSONEq(t, `{"error":"An unexpected error occurred."}`, body)
	})
}

func TestTenantProxy(t *testing.T) {
	f := newFixture(t)
	token := f.backendToken(t)

	create := `{
		"tenant_name": "Globex",
		"tenant_description": "Energy",
		"email": "hank@globex.test",
		"first_name": "Hank",
		"last_name": "Scorpio",
		"bh_tags": [{"Key": "industry", "Value": "Energy"}]
	}`
	status, body := do(t, http.MethodPost, f.url+server.RouteTenants, token, create)
	require.Equal(t, http.StatusOK, status, body)
	var result tenants.OnboardingResult
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	require.True(t, result.Success)
	require.Equal(t, "globex", result.RealmID)
	require.NotEmpty(t, result.Password)

	stored, err := f.backend.Repos().Tenants.Get(result.TenantID)
	require.NoError(t, err)
	require.Equal(t, []tenants.Tag{{Key: "industry", Value: "Energy"}}, stored.BhTags)

	status, body = do(t, http.MethodGet, f.url+server.RouteTenants+"?search=glob&tags=industry", token, "")
	require.Equal(t, http.StatusOK, status, body)
	require.Contains(t, body, `"total":1`)

	status, body = do(t, http.MethodGet, f.url+server.RouteTenants+"?search=initech", token, "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, `"total":0`)

	status, body = do(t, http.MethodPatch, f.url+"/api/tenants/"+result.TenantID, token, `{"tenant_name":"Other"}`)
	require.Equal(t, http.StatusNotImplemented, status)
	require.Contains(t, body, `"error"`)

	status, _ = do(t, http.MethodDelete, f.url+"/api/tenants/"+result.TenantID, token, "")
	require.Equal(t, http.StatusOK, status)

	status, body = do(t, http.MethodGet, f.url+"/api/tenants/"+result.TenantID, token, "")
	require.Equal(t, http.StatusNotFound, status)
	require.JSONEq(t, `{"error":{"detail":"Not found."}}`, body)

	require.Equal(t, float64(3), testutil.ToFloat64(f.proxy.Metrics().Requests.WithLabelValues(server.RouteTenants, "200")))
	require.Equal(t, float64(1), testutil.ToFloat64(f.proxy.Metrics().Requests.WithLabelValues(server.RouteTenant, "404")))
}

func TestUserAndRoleProxy(t *testing.T) {
	f := newFixture(t)
	token := f.backendToken(t)

	status, body := do(t, http.MethodPost, f.url+server.RouteUsers, token, `{"email":"ann@example.com","role":"viewer"}`)
	require.Equal(t, http.StatusOK, status, body)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &created))

	status, body = do(t, http.MethodPatch, f.url+"/api/users/"+created.ID, token, `{"status":"active"}`)
	require.Equal(t, http.StatusOK, status, body)
	require.Contains(t, body, `"status":"active"`)

	status, body = do(t, http.MethodPost, f.url+server.RouteUsers, token, `{"email":"ann@example.com","role":"viewer"}`)
	require.Equal(t, http.StatusConflict, status)
	require.Contains(t, body, `"error":{"detail"`)

	status, body = do(t, http.MethodGet, f.url+server.RouteRoles+"?tenant_id=global", token, "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, `"total":3`)

	status, _ = do(t, http.MethodGet, f.url+server.RouteRoles, "Bearer forged", "")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestInvalidBody(t *testing.T) {
	f := newFixture(t)
	token := f.backendToken(t)
	status, body := do(t, http.MethodPost, f.url+server.RouteTenants, token, `{"tenant_name":`)
	require.Equal(t, http.StatusInternalServerError, status)
	require.JSONEq(t, `{"error":"An unexpected error occurred."}`, body)
}

func TestCorsAndMetrics(t *testing.T) {
	setServiceAccount(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://console.example.com")
	s, err := server.New(config.New(), server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, server.RouteTenants, nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, server.RouteTenants, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteMetrics, bytes.NewReader(nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `bhadmin_proxy_requests_total{route="/api/tenants",status="401"} 1`)
}
