// Package identity is the OpenID Connect relying party used by the session
// manager. It runs the authorization code flow with PKCE against a Keycloak
// realm, keeps the resulting tokens, refreshes them on demand and reports
// lifecycle events through Handlers.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/bh-premnath-git/bhadminui/identity/flowstate"
	"github.com/bh-premnath-git/bhadminui/identity/tokenstore"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	apperrors "github.com/bh-premnath-git/bhadminui/internal/errors"
)

// NowTimeFunc is the clock used for expiry decisions.
var NowTimeFunc = time.Now

const (
	OnLoadLoginRequired = "login-required"
	OnLoadCheckSSO      = "check-sso"

	PKCEMethodS256 = "S256"
)

// Handlers receive identity lifecycle events. Any of them may be nil. They
// are called without internal locks held, so they may call back into the
// Client.
type Handlers struct {
	OnAuthSuccess        func()
	OnAuthError          func(err error)
	OnAuthRefreshSuccess func()
	OnAuthRefreshError   func(err error)
	OnAuthLogout         func()
	OnTokenExpired       func()
}

// Redirector sends the user agent to target.
type Redirector interface {
	Redirect(ctx context.Context, target string) error
}

type RedirectFunc func(ctx context.Context, target string) error

func (f RedirectFunc) Redirect(ctx context.Context, target string) error { return f(ctx, target) }

// InitOptions mirror the options of a browser adapter's init call.
type InitOptions struct {
	// OnLoad is OnLoadLoginRequired to start a login when no session can be
	// restored. Anything else only restores.
	OnLoad      string
	RedirectURI string
	PKCEMethod  string
}

type Client struct {
	realm    string
	clientID string

	verifier      *oidc.IDTokenVerifier
	endSessionURL string

	httpClient *http.Client
	flows      flowstate.Repo
	store      tokenstore.Repo
	redirector Redirector
	log        zerolog.Logger

	refreshes singleflight.Group

	mu          sync.Mutex
	oauth       oauth2.Config
	pkceMethod  string
	handlers    Handlers
	tokens      *tokenstore.Tokens
	expiryTimer *time.Timer
	initialized bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRedirector(r Redirector) Option {
	return func(c *Client) { c.redirector = r }
}

func WithFlowRepo(r flowstate.Repo) Option {
	return func(c *Client) { c.flows = r }
}

func WithTokenRepo(r tokenstore.Repo) Option {
	return func(c *Client) { c.store = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New validates cfg and discovers the realm's endpoints. It fails with
// ErrMissingConfig naming every absent setting.
func New(ctx context.Context, cfg config.IdentityConfig, opts ...Option) (*Client, error) {
	if err := config.ValidateIdentity(cfg); err != nil {
		return nil, err
	}

	c := &Client{
		realm:      cfg.GetRealm(),
		clientID:   cfg.GetClientID(),
		pkceMethod: cfg.GetPKCEMethod(),
		flows:      flowstate.NewInMemoryRepo(),
		store:      tokenstore.NewInMemoryRepo(),
		log:        log.Logger.With().Str("component", "identity").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	issuer := config.IssuerURL(cfg)
	provider, err := oidc.NewProvider(c.withClient(ctx), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover identity provider %s: %w", issuer, err)
	}

	var meta struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}

	endpoint := provider.Endpoint()
	// Public clients send client_id in the form body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	c.endSessionURL = meta.EndSessionEndpoint
	c.verifier = provider.Verifier(&oidc.Config{
		ClientID: c.clientID,
		Now:      func() time.Time { return NowTimeFunc() },
	})
	c.oauth = oauth2.Config{
		ClientID:    c.clientID,
		Endpoint:    endpoint,
		RedirectURL: cfg.GetRedirectURI(),
		Scopes:      []string{oidc.ScopeOpenID, "profile", "email"},
	}
	c.log.Debug().Str("issuer", issuer).Msg("identity provider discovered")
	return c, nil
}

// SetHandlers replaces the event handlers.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// Init restores a persisted session, refreshing it if its access token has
// expired. When nothing can be restored and OnLoad is login-required, it
// starts a login and returns false: the outcome of that login arrives
// through OnAuthSuccess or OnAuthError. Init itself fires no events.
func (c *Client) Init(ctx context.Context, opts InitOptions) (bool, error) {
	c.mu.Lock()
	if c.initialized {
		authenticated := c.tokens != nil
		c.mu.Unlock()
		return authenticated, nil
	}
	c.initialized = true
	if opts.RedirectURI != "" {
		c.oauth.RedirectURL = opts.RedirectURI
	}
	if opts.PKCEMethod != "" {
		c.pkceMethod = opts.PKCEMethod
	}
	method := c.pkceMethod
	c.mu.Unlock()

	if method != "" && method != PKCEMethodS256 {
		return false, fmt.Errorf("%w: pkce method %q", apperrors.ErrUnsupported, method)
	}

	if stored, err := c.store.Get(c.realm, c.clientID); err == nil {
		if stored.ExpiresAt.After(NowTimeFunc()) {
			c.setTokens(stored)
			return true, nil
		}
		if _, err := c.refresh(ctx, stored); err == nil {
			return true, nil
		}
		c.log.Debug().Msg("stored session could not be refreshed")
		c.clear()
	}

	if opts.OnLoad != OnLoadLoginRequired {
		return false, nil
	}
	if _, err := c.Login(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// Login records a new authorization attempt and returns the authorization
// URL, after handing it to the Redirector when one is configured.
func (c *Client) Login(ctx context.Context) (string, error) {
	cfg, method := c.config()
	state := randomString(24)
	flow := &flowstate.FlowState{
		Nonce:       randomString(24),
		RedirectURI: cfg.RedirectURL,
		CreatedAt:   NowTimeFunc(),
	}
	opts := []oauth2.AuthCodeOption{oidc.Nonce(flow.Nonce)}
	if method == PKCEMethodS256 {
		flow.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(flow.CodeVerifier))
	}
	if err := c.flows.Upsert(state, flow); err != nil {
		return "", fmt.Errorf("failed to store login state: %w", err)
	}

	authURL := cfg.AuthCodeURL(state, opts...)
	if c.redirector != nil {
		if err := c.redirector.Redirect(ctx, authURL); err != nil {
			return authURL, fmt.Errorf("failed to redirect to login: %w", err)
		}
	}
	return authURL, nil
}

// HandleCallbackURL completes a login from the URL the provider redirected
// back to.
func (c *Client) HandleCallbackURL(ctx context.Context, callback *url.URL) error {
	q := callback.Query()
	if e := q.Get("error"); e != "" {
		err := fmt.Errorf("%w: %s: %s", apperrors.ErrLoginRequired, e, q.Get("error_description"))
		c.fire(func(h Handlers) {
			if h.OnAuthError != nil {
				h.OnAuthError(err)
			}
		})
		return err
	}
	return c.HandleCallback(ctx, q.Get("state"), q.Get("code"))
}

// HandleCallback exchanges the authorization code, verifies the ID token and
// its nonce, stores the tokens and fires OnAuthSuccess. Failures fire
// OnAuthError.
func (c *Client) HandleCallback(ctx context.Context, state, code string) error {
	tokens, err := c.completeLogin(ctx, state, code)
	if err != nil {
		c.log.Warn().Err(err).Msg("login failed")
		c.fire(func(h Handlers) {
			if h.OnAuthError != nil {
				h.OnAuthError(err)
			}
		})
		return err
	}
	c.setTokens(tokens)
	c.log.Info().Str("subject", tokens.Subject).Msg("login succeeded")
	c.fire(func(h Handlers) {
		if h.OnAuthSuccess != nil {
			h.OnAuthSuccess()
		}
	})
	return nil
}

func (c *Client) completeLogin(ctx context.Context, state, code string) (tokenstore.Tokens, error) {
	flow, err := c.flows.Get(state)
	if err != nil {
		return tokenstore.Tokens{}, err
	}
	_ = c.flows.Delete(state)
	if code == "" {
		return tokenstore.Tokens{}, fmt.Errorf("%w: missing code", apperrors.ErrLoginRequired)
	}

	cfg, _ := c.config()
	cfg.RedirectURL = flow.RedirectURI
	var opts []oauth2.AuthCodeOption
	if flow.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(flow.CodeVerifier))
	}
	tok, err := cfg.Exchange(c.withClient(ctx), code, opts...)
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	return c.tokensFrom(ctx, tok, nil, flow.Nonce)
}

// UpdateToken refreshes the tokens when the access token expires within
// minValidity. A negative minValidity always refreshes. It reports whether a
// refresh happened. Concurrent calls share one refresh.
func (c *Client) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	c.mu.Lock()
	current := c.tokens
	c.mu.Unlock()
	if current == nil {
		return false, apperrors.ErrNotAuthenticated
	}
	if minValidity >= 0 && current.ExpiresAt.Sub(NowTimeFunc()) > minValidity {
		return false, nil
	}

	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		_, err := c.refresh(ctx, *current)
		if err != nil {
			c.log.Warn().Err(err).Msg("token refresh failed")
			c.fire(func(h Handlers) {
				if h.OnAuthRefreshError != nil {
					h.OnAuthRefreshError(err)
				}
			})
			return nil, err
		}
		c.fire(func(h Handlers) {
			if h.OnAuthRefreshSuccess != nil {
				h.OnAuthRefreshSuccess()
			}
		})
		return nil, nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) refresh(ctx context.Context, current tokenstore.Tokens) (tokenstore.Tokens, error) {
	if current.RefreshToken == "" {
		return tokenstore.Tokens{}, fmt.Errorf("%w: no refresh token", apperrors.ErrRefreshFailed)
	}
	cfg, _ := c.config()
	// A token without an access token is never valid, so the source
	// always calls the token endpoint.
	tok, err := cfg.TokenSource(c.withClient(ctx), &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}
	tokens, err := c.tokensFrom(ctx, tok, &current, "")
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}
	c.setTokens(tokens)
	return tokens, nil
}

// Logout drops the session, fires OnAuthLogout and returns the provider's
// end-session URL, after handing it to the Redirector when one is
// configured.
func (c *Client) Logout(ctx context.Context) (string, error) {
	c.mu.Lock()
	previous := c.tokens
	redirectURI := c.oauth.RedirectURL
	c.mu.Unlock()
	c.clear()

	c.fire(func(h Handlers) {
		if h.OnAuthLogout != nil {
			h.OnAuthLogout()
		}
	})

	if c.endSessionURL == "" {
		return "", nil
	}
	u, err := url.Parse(c.endSessionURL)
	if err != nil {
		return "", fmt.Errorf("invalid end_session_endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", c.clientID)
	q.Set("post_logout_redirect_uri", redirectURI)
	if previous != nil && previous.IDToken != "" {
		q.Set("id_token_hint", previous.IDToken)
	}
	u.RawQuery = q.Encode()

	target := u.String()
	if c.redirector != nil {
		if err := c.redirector.Redirect(ctx, target); err != nil {
			return target, fmt.Errorf("failed to redirect to logout: %w", err)
		}
	}
	return target, nil
}

// Authenticated reports whether the client holds tokens.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens != nil
}

// Token returns the current raw access token, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken
}

// IDToken returns the current raw ID token, or "".
func (c *Client) IDToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.IDToken
}

// Expiry returns when the current access token expires.
func (c *Client) Expiry() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens == nil {
		return time.Time{}
	}
	return c.tokens.ExpiresAt
}

// TokenParsed decodes the claims of the access token without verifying
// them. The token was obtained directly from the token endpoint over TLS.
func (c *Client) TokenParsed() (map[string]any, error) {
	raw := c.Token()
	if raw == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}
	return claims, nil
}

func (c *Client) tokensFrom(ctx context.Context, tok *oauth2.Token, previous *tokenstore.Tokens, nonce string) (tokenstore.Tokens, error) {
	rawID, _ := tok.Extra("id_token").(string)
	out := tokenstore.Tokens{
		IDToken:      rawID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		CreatedAt:    NowTimeFunc(),
	}
	if previous != nil {
		out.Subject, out.Email, out.Name = previous.Subject, previous.Email, previous.Name
		if out.RefreshToken == "" {
			out.RefreshToken = previous.RefreshToken
		}
		if rawID == "" {
			out.IDToken = previous.IDToken
			return out, nil
		}
	}
	if rawID == "" {
		return tokenstore.Tokens{}, fmt.Errorf("no id_token in token response")
	}

	idToken, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("id token verification failed: %w", err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return tokenstore.Tokens{}, apperrors.ErrInvalidNonce
	}
	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return tokenstore.Tokens{}, fmt.Errorf("failed to extract claims: %w", err)
	}
	out.Subject = idToken.Subject
	out.Email = claims.Email
	out.Name = claims.Name
	return out, nil
}

func (c *Client) setTokens(t tokenstore.Tokens) {
	c.mu.Lock()
	c.tokens = &t
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
	}
	c.expiryTimer = nil
	if !t.ExpiresAt.IsZero() {
		d := t.ExpiresAt.Sub(NowTimeFunc())
		if d < 0 {
			d = 0
		}
		c.expiryTimer = time.AfterFunc(d, c.tokenExpired)
	}
	c.mu.Unlock()

	if err := c.store.Upsert(c.realm, c.clientID, t); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist tokens")
	}
}

func (c *Client) clear() {
	c.mu.Lock()
	c.tokens = nil
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
		c.expiryTimer = nil
	}
	c.mu.Unlock()
	_ = c.store.Delete(c.realm, c.clientID)
}

func (c *Client) tokenExpired() {
	c.log.Debug().Msg("access token expired")
	c.fire(func(h Handlers) {
		if h.OnTokenExpired != nil {
			h.OnTokenExpired()
		}
	})
}

func (c *Client) fire(fn func(Handlers)) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	fn(h)
}

func (c *Client) config() (oauth2.Config, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.oauth, c.pkceMethod
}

func (c *Client) withClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, c.httpClient)
}

func randomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
