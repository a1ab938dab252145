// Package session keeps one authenticated session per running console. It
// drives the identity client, exchanges the identity token for a backend
// access token and hands that token to outgoing requests.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bh-premnath-git/bhadminui/identity"
	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
	"github.com/bh-premnath-git/bhadminui/transport"
)

const (
	DefaultRefreshThreshold = 30 * time.Second
	DefaultExchangePath     = "/api/auth/generate-token"
	DefaultExchangeTimeout  = 10 * time.Second
)

// IdentityClient is the identity provider surface the manager drives.
// *identity.Client implements it.
type IdentityClient interface {
	Init(ctx context.Context, opts identity.InitOptions) (bool, error)
	Login(ctx context.Context) (string, error)
	Logout(ctx context.Context) (string, error)
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)
	Token() string
	TokenParsed() (map[string]any, error)
	SetHandlers(h identity.Handlers)
}

var _ IdentityClient = (*identity.Client)(nil)

type Manager struct {
	idp      IdentityClient
	exchange *transport.Client
	log      zerolog.Logger

	exchangePath     string
	exchangeTimeout  time.Duration
	refreshThreshold time.Duration
	initOpts         identity.InitOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state Session
	// seq orders exchanges; only the latest one may write the token.
	seq uint64
	// ready is closed when the token state leaves loading.
	ready      chan struct{}
	changed    chan struct{}
	refreshing bool
	// refreshSeq is the exchange begun by a refresh event during
	// RefreshIfExpiring; zero when none is pending.
	refreshSeq uint64
}

type Option func(*Manager)

func WithRefreshThreshold(d time.Duration) Option {
	return func(m *Manager) { m.refreshThreshold = d }
}

func WithExchangePath(path string) Option {
	return func(m *Manager) { m.exchangePath = path }
}

func WithExchangeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.exchangeTimeout = d }
}

func WithInitOptions(opts identity.InitOptions) Option {
	return func(m *Manager) { m.initOpts = opts }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager registers the manager as idp's event handler. exchange is the
// client for the same-origin proxy serving the token exchange route.
func NewManager(idp IdentityClient, exchange *transport.Client, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		idp:              idp,
		exchange:         exchange,
		log:              log.Logger.With().Str("component", "session").Logger(),
		exchangePath:     DefaultExchangePath,
		exchangeTimeout:  DefaultExchangeTimeout,
		refreshThreshold: DefaultRefreshThreshold,
		initOpts:         identity.InitOptions{OnLoad: identity.OnLoadLoginRequired, PKCEMethod: identity.PKCEMethodS256},
		ctx:              ctx,
		cancel:           cancel,
		ready:            closedChan(),
		changed:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	idp.SetHandlers(identity.Handlers{
		OnAuthSuccess:        m.onAuthSuccess,
		OnAuthError:          m.onAuthError,
		OnAuthRefreshSuccess: m.onAuthRefreshSuccess,
		OnAuthRefreshError:   m.onAuthError,
		OnAuthLogout:         m.onAuthLogout,
		OnTokenExpired:       m.onTokenExpired,
	})
	return m
}

// Initialize restores or starts the login. When a session is restored the
// backend token is exchanged before returning; an exchange failure is
// returned together with authenticated=true. When a login redirect was
// started it returns false and the login completes through identity events.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	m.update(func(s *Session) {
		s.Status = StatusAuthenticating
		s.Err = nil
	})

	authenticated, err := m.idp.Init(ctx, m.initOpts)
	if err != nil {
		m.fail(err)
		return false, err
	}
	if !authenticated {
		return false, nil
	}

	m.syncIdentity()
	if _, err := m.ExchangeForBackendToken(ctx, m.idp.Token()); err != nil {
		return true, err
	}
	return true, nil
}

// ExchangeForBackendToken trades identityToken for a backend access token.
// While it runs the token state is loading and AccessToken waits. Failures
// are *AuthExchangeError and are not retried.
func (m *Manager) ExchangeForBackendToken(ctx context.Context, identityToken string) (string, error) {
	seq := m.beginExchange()
	token, err := m.requestBackendToken(ctx, identityToken)
	m.finishExchange(seq, token, err)
	return token, err
}

// RefreshIfExpiring refreshes the identity token when less than threshold of
// validity remains, then exchanges it again. A failed refresh starts a single
// login redirect.
func (m *Manager) RefreshIfExpiring(ctx context.Context, threshold time.Duration) error {
	m.mu.Lock()
	m.refreshing = true
	if m.state.Status == StatusReady {
		m.state.Status = StatusRefreshing
		m.notifyLocked()
	}
	m.mu.Unlock()

	refreshed, err := m.idp.UpdateToken(ctx, threshold)

	m.mu.Lock()
	m.refreshing = false
	seq := m.refreshSeq
	m.refreshSeq = 0
	if !refreshed && err == nil && m.state.Status == StatusRefreshing {
		m.state.Status = StatusReady
		m.notifyLocked()
	}
	m.mu.Unlock()

	if err != nil {
		m.fail(err)
		m.log.Info().Err(err).Msg("token refresh failed, redirecting to login")
		if _, loginErr := m.idp.Login(ctx); loginErr != nil {
			return errors.Join(err, loginErr)
		}
		return err
	}
	if !refreshed {
		return nil
	}
	if seq == 0 {
		m.syncIdentity()
		seq = m.beginExchange()
	}
	token, err := m.requestBackendToken(ctx, m.idp.Token())
	m.finishExchange(seq, token, err)
	return err
}

// Logout ends the identity provider session and clears every session field.
func (m *Manager) Logout(ctx context.Context) error {
	_, err := m.idp.Logout(ctx)
	m.clear()
	if err != nil {
		return apperrors.Wrapf(err, "logout")
	}
	return nil
}

// AccessToken returns the backend token for an outgoing request. While an
// exchange is in flight it waits for the outcome; otherwise it returns the
// current token, which is empty when there is none.
func (m *Manager) AccessToken(ctx context.Context) string {
	token, _ := m.AwaitToken(ctx)
	return token
}

// AwaitToken is AccessToken with the reason for an empty token.
func (m *Manager) AwaitToken(ctx context.Context) (string, error) {
	for {
		m.mu.Lock()
		if m.state.TokenState != TokenLoading {
			s := m.state
			m.mu.Unlock()
			switch {
			case s.BackendAccessToken != "":
				return s.BackendAccessToken, nil
			case s.Err != nil:
				return "", s.Err
			default:
				return "", apperrors.ErrNotAuthenticated
			}
		}
		ready := m.ready
		m.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Session returns a snapshot of the current state.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Changed returns a channel that is closed on the next state change.
func (m *Manager) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Close stops background exchanges and waits for them to return.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) onAuthSuccess() {
	m.syncIdentity()
	m.exchangeInBackground()
}

// onAuthRefreshSuccess marks the token as loading before the identity client
// returns from UpdateToken, so no request goes out with the previous backend
// token. Inside RefreshIfExpiring the exchange itself runs on the caller.
func (m *Manager) onAuthRefreshSuccess() {
	m.syncIdentity()
	m.mu.Lock()
	if m.refreshing {
		m.refreshSeq = m.beginExchangeLocked()
		m.mu.Unlock()
		return
	}
	retry := m.state.TokenState == TokenError
	m.mu.Unlock()
	if retry {
		m.exchangeInBackground()
	}
}

func (m *Manager) onAuthError(err error) {
	m.fail(err)
}

func (m *Manager) onAuthLogout() {
	m.clear()
}

func (m *Manager) onTokenExpired() {
	m.wg.Add(1)
	defer m.wg.Done()
	if err := m.RefreshIfExpiring(m.ctx, m.refreshThreshold); err != nil {
		m.log.Warn().Err(err).Msg("refresh after token expiry failed")
	}
}

// exchangeInBackground marks the token as loading before returning, so that
// requests issued right after an auth event wait for the new token.
func (m *Manager) exchangeInBackground() {
	seq := m.beginExchange()
	identityToken := m.idp.Token()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		token, err := m.requestBackendToken(m.ctx, identityToken)
		m.finishExchange(seq, token, err)
	}()
}

func (m *Manager) requestBackendToken(ctx context.Context, identityToken string) (string, error) {
	if identityToken == "" {
		return "", &AuthExchangeError{Status: http.StatusUnauthorized, Err: apperrors.ErrNotAuthenticated}
	}
	ctx, cancel := context.WithTimeout(ctx, m.exchangeTimeout)
	defer cancel()

	var out struct {
		AccessToken struct {
			AccessToken string `json:"access_token"`
		} `json:"access_token"`
	}
	err := m.exchange.DoJSON(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   m.exchangePath,
	}, transport.BearerHeader(identityToken), &out)
	if err != nil {
		return "", newAuthExchangeError(err)
	}
	if out.AccessToken.AccessToken == "" {
		return "", &AuthExchangeError{Err: errors.New("response carries no access token")}
	}
	return out.AccessToken.AccessToken, nil
}

func (m *Manager) beginExchange() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beginExchangeLocked()
}

func (m *Manager) beginExchangeLocked() uint64 {
	m.seq++
	if m.state.TokenState != TokenLoading {
		m.ready = make(chan struct{})
	}
	m.state.TokenState = TokenLoading
	m.state.Status = StatusExchanging
	m.notifyLocked()
	return m.seq
}

func (m *Manager) finishExchange(seq uint64, token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		return
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("backend token exchange failed")
		m.state.BackendAccessToken = ""
		m.state.TokenState = TokenError
		m.state.Status = StatusUnauthenticated
		m.state.Err = err
	} else {
		m.log.Debug().Msg("backend token ready")
		m.state.BackendAccessToken = token
		m.state.TokenState = TokenReady
		m.state.Status = StatusReady
		m.state.Err = nil
	}
	close(m.ready)
	m.notifyLocked()
}

func (m *Manager) syncIdentity() {
	raw := m.idp.Token()
	claims, err := m.idp.TokenParsed()
	if err != nil {
		m.log.Debug().Err(err).Msg("identity token claims unavailable")
	}
	m.update(func(s *Session) {
		s.IsAuthenticated = raw != ""
		s.RawIdentityToken = raw
		s.ParsedClaims = claims
	})
}

// fail moves the session to unauthenticated and keeps err for the UI.
func (m *Manager) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = Session{Status: StatusUnauthenticated, TokenState: TokenIdle, Err: err}
	m.releaseLocked()
}

func (m *Manager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = Session{Status: StatusUnauthenticated, TokenState: TokenIdle}
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	select {
	case <-m.ready:
	default:
		close(m.ready)
	}
	m.notifyLocked()
}

func (m *Manager) update(fn func(s *Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	m.notifyLocked()
}

func (m *Manager) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
