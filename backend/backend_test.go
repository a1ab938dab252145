package backend_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bh-premnath-git/bhadminui/backend"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	"github.com/bh-premnath-git/bhadminui/internal/utils"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/roles"
	"github.com/bh-premnath-git/bhadminui/tenants"
	"github.com/bh-premnath-git/bhadminui/users"
)

var account = config.ServiceAccount{
	Realm:    "master",
	Username: "svc-admin",
	Password: "svc-secret",
	ClientID: "svc-admin",
}

func newBackend(t *testing.T, opts ...backend.Option) (*backend.Backend, *httptest.Server) {
	t.Helper()
	opts = append([]backend.Option{
		backend.WithLogger(zerolog.Nop()),
		backend.WithLoginBaseURL("https://sso.example.com"),
	}, opts...)
	b, err := backend.New(account, opts...)
	require.NoError(t, err)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv
}

func call(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func serviceToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := call(t, http.MethodPost, srv.URL+backend.RouteGenerateToken, "identity-token", account)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out backend.TokenResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "Bearer", out.AccessToken.TokenType)
	require.NotEmpty(t, out.AccessToken.AccessToken)
	return out.AccessToken.AccessToken
}

func TestGenerateToken(t *testing.T) {
	_, srv := newBackend(t)

	t.Run("requires an identity token", func(t *testing.T) {
		resp, _ := call(t, http.MethodPost, srv.URL+backend.RouteGenerateToken, "", account)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects wrong credentials", func(t *testing.T) {
		wrong := account
		wrong.Password = "nope"
		resp, body := call(t, http.MethodPost, srv.URL+backend.RouteGenerateToken, "identity-token", wrong)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.JSONEq(t, `{"detail":"Invalid user credentials"}`, string(body))
	})

	t.Run("issues a usable token", func(t *testing.T) {
		token := serviceToken(t, srv)
		resp, _ := call(t, http.MethodGet, srv.URL+"/bh-role/list/", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRequireToken(t *testing.T) {
	b, srv := newBackend(t)

	resp, _ := call(t, http.MethodGet, srv.URL+"/bh-tenant/list/", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, http.MethodGet, srv.URL+"/bh-tenant/list/", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A token from a backend with another key.
	other, err := backend.New(account, backend.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	foreign, err := other.IssueToken()
	require.NoError(t, err)
	resp, _ = call(t, http.MethodGet, srv.URL+"/bh-tenant/list/", foreign, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// An expired token.
	expired, err := backend.New(account,
		backend.WithLogger(zerolog.Nop()),
		backend.WithSigningKey([]byte("shared-key")),
		backend.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	require.NoError(t, err)
	stale, err := expired.IssueToken()
	require.NoError(t, err)
	_, shared := newBackend(t, backend.WithSigningKey([]byte("shared-key")))
	resp, _ = call(t, http.MethodGet, shared.URL+"/bh-tenant/list/", stale, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	valid, err := b.IssueToken()
	require.NoError(t, err)
	resp, _ = call(t, http.MethodGet, srv.URL+"/bh-tenant/list/", valid, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTenantOnboarding(t *testing.T) {
	b, srv := newBackend(t)
	token := serviceToken(t, srv)

	body := map[string]any{
		"tenant_name":        "Acme Corp",
		"tenant_description": "Widgets",
		"email":              "owner@acme.test",
		"first_name":         "Wile",
		"last_name":          "Coyote",
		"bh_tags":            map[string]any{"data": []tenants.Tag{{Key: "industry", Value: "Technology"}}},
	}
	resp, raw := call(t, http.MethodPost, srv.URL+"/bh-tenant/", token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var result tenants.OnboardingResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.True(t, result.Success)
	require.Equal(t, "owner@acme.test", result.Username)
	require.Equal(t, "acme-corp", result.RealmID)
	require.Equal(t, "acme-corp-client", result.ClientID)
	require.Contains(t, result.LoginURL, "https://sso.example.com/realms/acme-corp/")
	require.NoError(t, users.ValidatePasswordStrength(result.Password))

	admin, err := b.Repos().Users.GetByEmail("owner@acme.test")
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, admin.Role)
	require.Equal(t, result.TenantID, admin.TenantID)
	require.True(t, admin.CheckPassword(result.Password))

	resp, raw = call(t, http.MethodGet, srv.URL+"/bh-tenant/list/?tags=industry%3DTechnology", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pagination.Envelope[tenants.Tenant]
	require.NoError(t, json.Unmarshal(raw, &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "Acme Corp", page.Data[0].TenantName)
	require.Equal(t, []tenants.Tag{{Key: "industry", Value: "Technology"}}, page.Data[0].BhTags)

	resp, _ = call(t, http.MethodPost, srv.URL+"/bh-tenant/", token, body)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = call(t, http.MethodDelete, srv.URL+"/bh-tenant/"+result.TenantID+"/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, http.MethodGet, srv.URL+"/bh-tenant/"+result.TenantID+"/", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_, err = b.Repos().Users.GetByEmail("owner@acme.test")
	require.Error(t, err)
}

func TestUserAndRoleResources(t *testing.T) {
	_, srv := newBackend(t)
	token := serviceToken(t, srv)

	resp, raw := call(t, http.MethodPost, srv.URL+"/bh-user/", token, users.CreateRequest{Email: "bad", Role: users.RoleUser})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))

	resp, raw = call(t, http.MethodPost, srv.URL+"/bh-user/", token, users.CreateRequest{Email: "ann@example.com", Role: users.RoleViewer})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var ann users.User
	require.NoError(t, json.Unmarshal(raw, &ann))
	require.Equal(t, users.StatusPending, ann.Status)

	resp, raw = call(t, http.MethodPatch, srv.URL+"/bh-user/"+ann.ID+"/", token, users.UpdateRequest{Status: utils.Ptr(users.StatusActive)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = call(t, http.MethodGet, srv.URL+"/bh-user/list/?status=active", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var userPage pagination.Envelope[users.User]
	require.NoError(t, json.Unmarshal(raw, &userPage))
	require.Len(t, userPage.Data, 1)

	resp, raw = call(t, http.MethodGet, srv.URL+"/bh-role/list/?tenant_id=global&limit=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rolePage pagination.Envelope[roles.Role]
	require.NoError(t, json.Unmarshal(raw, &rolePage))
	require.Equal(t, 3, rolePage.Total)
	require.Len(t, rolePage.Data, 2)
	require.True(t, rolePage.Next)

	resp, _ = call(t, http.MethodPost, srv.URL+"/bh-role/", token, roles.CreateRequest{Name: "Scoped", TenantID: "missing"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, http.MethodDelete, srv.URL+"/bh-role/unknown/", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
