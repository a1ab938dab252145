package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bh-premnath-git/bhadminui/identity"
	"github.com/bh-premnath-git/bhadminui/identity/oidctest"
	"github.com/bh-premnath-git/bhadminui/identity/tokenstore"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/session"
	"github.com/bh-premnath-git/bhadminui/transport"
)

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

func (r *redirects) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.urls)
}

// exchangeServer answers the token exchange with "backend:" + the bearer.
type exchangeServer struct {
	*httptest.Server

	mu      sync.Mutex
	fail    bool
	bearers []string
	// hold blocks requests carrying this bearer until release is closed.
	hold    string
	started chan struct{}
	release chan struct{}
}

func newExchangeServer(t *testing.T) *exchangeServer {
	t.Helper()
	s := &exchangeServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != session.DefaultExchangePath {
			http.NotFound(w, r)
			return
		}
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		s.bearers = append(s.bearers, bearer)
		fail, hold := s.fail, s.hold
		started, release := s.started, s.release
		s.mu.Unlock()

		if hold != "" && bearer == hold {
			close(started)
			<-release
		}

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "exchange unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": map[string]string{"access_token": "backend:" + bearer},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *exchangeServer) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *exchangeServer) holdBearer(bearer string) (started, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = bearer
	s.started = make(chan struct{})
	s.release = make(chan struct{})
	return s.started, s.release
}

func (s *exchangeServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bearers...)
}

type fakeIdentity struct {
	handlers identity.Handlers
}

func (f *fakeIdentity) Init(context.Context, identity.InitOptions) (bool, error) { return false, nil }
func (f *fakeIdentity) Login(context.Context) (string, error)                    { return "", nil }
func (f *fakeIdentity) Logout(context.Context) (string, error)                   { return "", nil }
func (f *fakeIdentity) UpdateToken(context.Context, time.Duration) (bool, error) {
	return false, nil
}
func (f *fakeIdentity) Token() string                        { return "" }
func (f *fakeIdentity) TokenParsed() (map[string]any, error) { return nil, apperrors.ErrNotAuthenticated }
func (f *fakeIdentity) SetHandlers(h identity.Handlers)      { f.handlers = h }

type fixture struct {
	provider *oidctest.Provider
	exchange *exchangeServer
	idp      *identity.Client
	redirect *redirects
	manager  *session.Manager
}

func newFixture(t *testing.T, opts ...identity.Option) *fixture {
	t.Helper()
	p, err := oidctest.New("admin", "bh-admin-ui")
	require.NoError(t, err)
	t.Cleanup(p.Close)

	f := &fixture{provider: p, exchange: newExchangeServer(t), redirect: &redirects{}}
	opts = append([]identity.Option{identity.WithRedirector(f.redirect), identity.WithLogger(zerolog.Nop())}, opts...)
	f.idp, err = identity.New(context.Background(), config.StaticIdentity{
		ProviderURL: p.URL(),
		Realm:       p.Realm,
		ClientID:    p.ClientID,
		RedirectURI: "http://localhost:3000/auth/callback",
	}, opts...)
	require.NoError(t, err)

	f.manager = newManager(t, f.idp, f.exchange)
	return f
}

func newManager(t *testing.T, idp session.IdentityClient, exchange *exchangeServer) *session.Manager {
	t.Helper()
	client, err := transport.New(exchange.URL, transport.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	m := session.NewManager(idp, client, session.WithLogger(zerolog.Nop()))
	t.Cleanup(m.Close)
	return m
}

// login drives Initialize and the provider redirect to a completed callback.
func (f *fixture) login(t *testing.T) {
	t.Helper()
	authenticated, err := f.manager.Initialize(context.Background())
	require.NoError(t, err)
	require.False(t, authenticated)
	require.Equal(t, session.StatusAuthenticating, f.manager.Session().Status)

	callback, err := f.provider.Approve(f.redirect.last())
	require.NoError(t, err)
	require.NoError(t, f.idp.HandleCallbackURL(context.Background(), callback))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestManager_LoginExchangesBackendToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	token, err := f.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "backend:"+f.idp.Token(), token)
	require.Equal(t, []string{f.idp.Token()}, f.exchange.requests())

	s := f.manager.Session()
	require.True(t, s.IsAuthenticated)
	require.Equal(t, session.StatusReady, s.Status)
	require.Equal(t, session.TokenReady, s.TokenState)
	require.Equal(t, f.idp.Token(), s.RawIdentityToken)
	require.Equal(t, f.provider.User.Subject, s.ParsedClaims["sub"])
	require.NoError(t, s.Err)
}

func TestManager_ExchangeFailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.exchange.setFail(true)
	f.login(t)

	token, err := f.manager.AwaitToken(waitCtx(t))
	require.Empty(t, token)
	require.ErrorIs(t, err, apperrors.ErrAuthExchange)

	var exchangeErr *session.AuthExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusInternalServerError, exchangeErr.Status)
	require.JSONEq(t, `{"detail":"exchange unavailable"}`, string(exchangeErr.Data))

	s := f.manager.Session()
	require.Equal(t, session.TokenError, s.TokenState)
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	require.Empty(t, f.manager.AccessToken(context.Background()))
	require.Len(t, f.exchange.requests(), 1)
}

func TestManager_InitializeRestoresSession(t *testing.T) {
	store := tokenstore.NewInMemoryRepo()
	first := newFixture(t, identity.WithTokenRepo(store))
	first.login(t)
	_, err := first.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)

	// A second manager on the same identity provider and token repo.
	second := &fixture{provider: first.provider, exchange: newExchangeServer(t), redirect: &redirects{}}
	second.idp, err = identity.New(context.Background(), config.StaticIdentity{
		ProviderURL: first.provider.URL(),
		Realm:       first.provider.Realm,
		ClientID:    first.provider.ClientID,
		RedirectURI: "http://localhost:3000/auth/callback",
	}, identity.WithRedirector(second.redirect), identity.WithTokenRepo(store), identity.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	second.manager = newManager(t, second.idp, second.exchange)

	authenticated, err := second.manager.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, authenticated)
	require.Zero(t, second.redirect.count())
	require.Equal(t, session.StatusReady, second.manager.Session().Status)
	require.Equal(t, "backend:"+second.idp.Token(), second.manager.Session().BackendAccessToken)

	// Restored session with a failing exchange still reports authenticated.
	third := newManager(t, second.idp, second.exchange)
	second.exchange.setFail(true)
	authenticated, err = third.Initialize(context.Background())
	require.True(t, authenticated)
	require.ErrorIs(t, err, apperrors.ErrAuthExchange)
	require.Equal(t, session.TokenError, third.Session().TokenState)
}

func TestManager_RefreshExchangesNewToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before, err := f.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)

	require.NoError(t, f.manager.RefreshIfExpiring(context.Background(), 30*time.Second))
	require.Equal(t, before, f.manager.AccessToken(context.Background()))
	require.Len(t, f.exchange.requests(), 1)
	require.Equal(t, session.StatusReady, f.manager.Session().Status)

	require.NoError(t, f.manager.RefreshIfExpiring(context.Background(), 10*time.Minute))
	after := f.manager.AccessToken(context.Background())
	require.NotEqual(t, before, after)
	require.Equal(t, "backend:"+f.idp.Token(), after)
	require.Len(t, f.exchange.requests(), 2)
	require.Equal(t, 1, f.provider.TokenRequests(oidctest.GrantRefreshToken))
}

// refreshObserver reads the session from inside the refresh success event,
// the way a request issued at that moment would.
type refreshObserver struct {
	*identity.Client
	manager *session.Manager

	stateAtEvent session.TokenState
	seen         chan string
}

func (o *refreshObserver) SetHandlers(h identity.Handlers) {
	next := h.OnAuthRefreshSuccess
	h.OnAuthRefreshSuccess = func() {
		next()
		o.stateAtEvent = o.manager.Session().TokenState
		go func() { o.seen <- o.manager.AccessToken(context.Background()) }()
	}
	o.Client.SetHandlers(h)
}

func TestManager_RequestAfterRefreshEventWaitsForNewToken(t *testing.T) {
	f := newFixture(t)
	observer := &refreshObserver{Client: f.idp, seen: make(chan string, 1)}
	f.manager = newManager(t, observer, f.exchange)
	observer.manager = f.manager
	f.login(t)
	before, err := f.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)

	require.NoError(t, f.manager.RefreshIfExpiring(context.Background(), 10*time.Minute))
	require.Equal(t, session.TokenLoading, observer.stateAtEvent)

	var seen string
	select {
	case seen = <-observer.seen:
	case <-waitCtx(t).Done():
		t.Fatal("no token after refresh")
	}
	require.NotEqual(t, before, seen)
	require.Equal(t, "backend:"+f.idp.Token(), seen)
	require.Len(t, f.exchange.requests(), 2)
	require.Equal(t, session.StatusReady, f.manager.Session().Status)
}

func TestManager_RefreshFailureForcesSingleLogin(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)
	redirectsBefore := f.redirect.count()

	f.provider.SetFailRefresh(true)
	err = f.manager.RefreshIfExpiring(context.Background(), -1)
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.Equal(t, redirectsBefore+1, f.redirect.count())
	require.Contains(t, f.redirect.last(), "/protocol/openid-connect/auth")

	s := f.manager.Session()
	require.False(t, s.IsAuthenticated)
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	require.Empty(t, s.BackendAccessToken)
	require.Empty(t, f.manager.AccessToken(context.Background()))
}

func TestManager_Logout(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	_, err := f.manager.AwaitToken(waitCtx(t))
	require.NoError(t, err)

	changed := f.manager.Changed()
	require.NoError(t, f.manager.Logout(context.Background()))
	<-changed

	s := f.manager.Session()
	require.False(t, s.IsAuthenticated)
	require.Empty(t, s.RawIdentityToken)
	require.Empty(t, s.BackendAccessToken)
	require.Nil(t, s.ParsedClaims)
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	require.Contains(t, f.redirect.last(), "/protocol/openid-connect/logout")

	_, err = f.manager.AwaitToken(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestManager_AccessTokenWaitsForExchange(t *testing.T) {
	exchange := newExchangeServer(t)
	m := newManager(t, &fakeIdentity{}, exchange)
	started, release := exchange.holdBearer("slow")

	go func() { _, _ = m.ExchangeForBackendToken(context.Background(), "slow") }()
	<-started
	require.Equal(t, session.TokenLoading, m.Session().TokenState)

	got := make(chan string, 1)
	go func() { got <- m.AccessToken(context.Background()) }()

	select {
	case token := <-got:
		t.Fatalf("token returned before the exchange settled: %q", token)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case token := <-got:
		require.Equal(t, "backend:slow", token)
	case <-time.After(5 * time.Second):
		t.Fatal("token was not delivered")
	}
}

func TestManager_LatestExchangeWins(t *testing.T) {
	exchange := newExchangeServer(t)
	m := newManager(t, &fakeIdentity{}, exchange)
	started, release := exchange.holdBearer("stale")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.ExchangeForBackendToken(context.Background(), "stale")
	}()
	<-started

	token, err := m.ExchangeForBackendToken(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, "backend:fresh", token)

	close(release)
	<-done
	require.Equal(t, "backend:fresh", m.AccessToken(context.Background()))
	require.Equal(t, session.TokenReady, m.Session().TokenState)
}

func TestManager_ExchangeWithoutIdentityToken(t *testing.T) {
	exchange := newExchangeServer(t)
	m := newManager(t, &fakeIdentity{}, exchange)

	_, err := m.ExchangeForBackendToken(context.Background(), "")
	var exchangeErr *session.AuthExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusUnauthorized, exchangeErr.Status)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.Empty(t, exchange.requests())
}
