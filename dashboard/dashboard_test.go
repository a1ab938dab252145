package dashboard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bh-premnath-git/bhadminui/backend"
	"github.com/bh-premnath-git/bhadminui/dashboard"
	"github.com/bh-premnath-git/bhadminui/identity"
	"github.com/bh-premnath-git/bhadminui/identity/oidctest"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/roles"
	"github.com/bh-premnath-git/bhadminui/server"
	"github.com/bh-premnath-git/bhadminui/session"
	"github.com/bh-premnath-git/bhadminui/tenants"
	"github.com/bh-premnath-git/bhadminui/transport"
	"github.com/bh-premnath-git/bhadminui/users"
)

type testConfig struct {
	config.StaticIdentity
	config.Session
	config.Cache
	config.Backend
}

type redirects struct {
	mu   sync.Mutex
	urls []string
}

func (r *redirects) Redirect(_ context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, target)
	return nil
}

func (r *redirects) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urls[len(r.urls)-1]
}

type stack struct {
	provider *oidctest.Provider
	backend  *backend.Backend
	redirect *redirects
	app      *dashboard.App
}

// newStack runs the identity provider, the backend and the console proxy
// in-process and builds an App against them. wrap, when given, sits in front
// of the backend.
func newStack(t *testing.T, wrap ...func(http.Handler) http.Handler) *stack {
	t.Helper()
	p, err := oidctest.New("admin", "bh-admin-ui")
	require.NoError(t, err)
	t.Cleanup(p.Close)

	t.Setenv("ENV", "TEST")
	t.Setenv("SERVICE_ACCOUNT_USERNAME", "svc-admin")
	t.Setenv("SERVICE_ACCOUNT_PASSWORD", "svc-secret")
	t.Setenv("SERVICE_ACCOUNT_CLIENT_ID", "svc-admin")
	env := config.New()

	b, err := backend.New(env.GetServiceAccount(), backend.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	var handler http.Handler = b
	for _, w := range wrap {
		handler = w(handler)
	}
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	t.Setenv("API_REMOTE_URL", upstream.URL)

	proxy, err := server.New(env, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	console := httptest.NewServer(proxy)
	t.Cleanup(console.Close)
	t.Setenv("DASHBOARD_URL", console.URL)

	s := &stack{provider: p, backend: b, redirect: &redirects{}}
	cfg := testConfig{StaticIdentity: config.StaticIdentity{
		ProviderURL: p.URL(),
		Realm:       p.Realm,
		ClientID:    p.ClientID,
		RedirectURI: console.URL + "/auth/callback",
	}}
	s.app, err = dashboard.New(context.Background(), cfg,
		dashboard.WithIdentityOptions(identity.WithRedirector(s.redirect)),
		dashboard.WithRegisterer(prometheus.NewRegistry()),
		dashboard.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(s.app.Close)
	return s
}

func (s *stack) login(t *testing.T, ctx context.Context) {
	t.Helper()
	authenticated, err := s.app.Start(ctx)
	require.NoError(t, err)
	require.False(t, authenticated)

	callback, err := s.provider.Approve(s.redirect.last())
	require.NoError(t, err)
	require.NoError(t, s.app.HandleCallback(ctx, callback))

	_, err = s.app.Session.AwaitToken(ctx)
	require.NoError(t, err)
	require.Equal(t, session.StatusReady, s.app.Session.Session().Status)
	require.Contains(t, s.app.RealmRoles(), "admin")
}

// failTokenIssuance makes the backend's token endpoint answer 500.
func failTokenIssuance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == backend.RouteGenerateToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"token service unavailable"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func waitFor[T any](t *testing.T, ctx context.Context, sub *query.TypedSubscription[T], cond func(query.Result[T]) bool) query.Result[T] {
	t.Helper()
	for {
		changed := sub.Changed()
		res := sub.Result()
		if !res.Fetching && cond(res) {
			return res
		}
		select {
		case <-changed:
		case <-ctx.Done():
			t.Fatalf("condition not met: last result %+v", res)
		}
	}
}

func TestNew_MissingIdentityConfig(t *testing.T) {
	_, err := dashboard.New(context.Background(), testConfig{},
		dashboard.WithLogger(zerolog.Nop()))
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrMissingConfig))
}

func TestApp_TenantLifecycle(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.login(t, ctx)

	filters := tenants.Filters{Params: s.app.Page(pagination.Params{})}
	require.Equal(t, 10, filters.Limit)

	list, err := s.app.Tenants.List.Subscribe(s.app.Store, filters)
	require.NoError(t, err)
	defer list.Close()

	res, err := list.WaitResult(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.Data.Total)

	created, err := s.app.Tenants.Create.Trigger(ctx, s.app.Store, tenants.CreateRequest{
		TenantName: "Initech",
		Email:      "bill@initech.test",
		FirstName:  "Bill",
		LastName:   "Lumbergh",
		BhTags:     []tenants.Tag{{Key: "industry", Value: "Software"}},
	})
	require.NoError(t, err)
	require.True(t, created.Success)
	require.Equal(t, "bill@initech.test", created.Username)
	require.NoError(t, users.ValidatePasswordStrength(created.Password))

	// The create invalidated every tenant list, so the subscribed one refetches.
	res = waitFor(t, ctx, list, func(r query.Result[pagination.Envelope[tenants.Tenant]]) bool {
		return r.Data.Total == 1
	})
	require.Equal(t, "Initech", res.Data.Data[0].TenantName)
	require.Equal(t, []tenants.Tag{{Key: "industry", Value: "Software"}}, res.Data.Data[0].BhTags)

	admins, err := s.app.Users.List.Fetch(ctx, s.app.Store, users.Filters{TenantID: created.TenantID})
	require.NoError(t, err)
	require.NoError(t, admins.Err)
	require.Len(t, admins.Data.Data, 1)
	require.Equal(t, users.RoleAdmin, admins.Data.Data[0].Role)

	_, err = s.app.Tenants.Delete.Trigger(ctx, s.app.Store, created.TenantID)
	require.NoError(t, err)
	waitFor(t, ctx, list, func(r query.Result[pagination.Envelope[tenants.Tenant]]) bool {
		return r.Data.Total == 0
	})
}

func TestApp_LogoutSurfacesUnauthorized(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.login(t, ctx)

	res, err := s.app.Roles.List.Fetch(ctx, s.app.Store, roles.Filters{TenantID: roles.GlobalTenant})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Data.Total)

	require.NoError(t, s.app.Logout(ctx))
	state := s.app.Session.Session()
	require.False(t, state.IsAuthenticated)
	require.Empty(t, state.BackendAccessToken)
	require.Empty(t, s.app.Session.AccessToken(ctx))
	require.Contains(t, s.redirect.last(), "/protocol/openid-connect/logout")

	res, err = s.app.Roles.List.Fetch(ctx, s.app.Store, roles.Filters{Search: "admin"})
	require.NoError(t, err)
	var errResp *transport.ErrorResponse
	require.True(t, errors.As(res.Err, &errResp))
	require.Equal(t, http.StatusUnauthorized, errResp.Status)
	require.JSONEq(t, `{"error":"Unauthorized"}`, string(errResp.Data))
}

func TestApp_TenantChangesRefreshUserLists(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.login(t, ctx)

	everyone, err := s.app.Users.List.Subscribe(s.app.Store, users.Filters{Params: s.app.Page(pagination.Params{})})
	require.NoError(t, err)
	defer everyone.Close()
	res, err := everyone.WaitResult(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Equal(t, 0, res.Data.Total)

	created, err := s.app.Tenants.Create.Trigger(ctx, s.app.Store, tenants.CreateRequest{
		TenantName: "Hooli",
		Email:      "gavin@hooli.test",
		FirstName:  "Gavin",
		LastName:   "Belson",
	})
	require.NoError(t, err)

	// Onboarding created the tenant admin.
	res = waitFor(t, ctx, everyone, func(r query.Result[pagination.Envelope[users.User]]) bool {
		return r.Data.Total == 1
	})
	require.Equal(t, "gavin@hooli.test", res.Data.Data[0].Email)

	scoped, err := s.app.Users.List.Subscribe(s.app.Store, users.Filters{TenantID: created.TenantID})
	require.NoError(t, err)
	defer scoped.Close()
	scopedRes, err := scoped.WaitResult(ctx)
	require.NoError(t, err)
	require.Len(t, scopedRes.Data.Data, 1)

	_, err = s.app.Tenants.Delete.Trigger(ctx, s.app.Store, created.TenantID)
	require.NoError(t, err)

	// Deleting the tenant removed its users.
	scopedRes = waitFor(t, ctx, scoped, func(r query.Result[pagination.Envelope[users.User]]) bool {
		return len(r.Data.Data) == 0
	})
	require.False(t, scopedRes.Stale)
	waitFor(t, ctx, everyone, func(r query.Result[pagination.Envelope[users.User]]) bool {
		return r.Data.Total == 0
	})
}

func TestApp_FailedExchangeSurfacesUnauthorized(t *testing.T) {
	s := newStack(t, failTokenIssuance)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	authenticated, err := s.app.Start(ctx)
	require.NoError(t, err)
	require.False(t, authenticated)
	callback, err := s.provider.Approve(s.redirect.last())
	require.NoError(t, err)
	require.NoError(t, s.app.HandleCallback(ctx, callback))

	token, err := s.app.Session.AwaitToken(ctx)
	require.Empty(t, token)
	require.ErrorIs(t, err, apperrors.ErrAuthExchange)
	var exchangeErr *session.AuthExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusInternalServerError, exchangeErr.Status)
	require.Equal(t, session.TokenError, s.app.Session.Session().TokenState)

	res, err := s.app.Tenants.List.Fetch(ctx, s.app.Store, tenants.Filters{})
	require.NoError(t, err)
	require.Equal(t, query.StatusRejected, res.Status)
	var errResp *transport.ErrorResponse
	require.ErrorAs(t, res.Err, &errResp)
	require.Equal(t, http.StatusUnauthorized, errResp.Status)
	require.JSONEq(t, `{"error":"Unauthorized"}`, string(errResp.Data))
}
