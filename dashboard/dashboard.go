// Package dashboard is the console's application context. It owns the
// identity client, the session manager, the query store and the endpoint
// definitions, and hands them out through one explicit handle.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bh-premnath-git/bhadminui/identity"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	"github.com/bh-premnath-git/bhadminui/internal/utils"
	"github.com/bh-premnath-git/bhadminui/pagination"
	"github.com/bh-premnath-git/bhadminui/query"
	"github.com/bh-premnath-git/bhadminui/roles"
	"github.com/bh-premnath-git/bhadminui/session"
	"github.com/bh-premnath-git/bhadminui/tenants"
	"github.com/bh-premnath-git/bhadminui/transport"
	"github.com/bh-premnath-git/bhadminui/users"
)

// Config is everything the console needs at startup.
type Config interface {
	config.IdentityConfig
	config.SessionConfig
	config.CacheConfig
	config.BackendConfig
}

type App struct {
	Session *session.Manager
	Store   *query.Store

	Tenants tenants.Endpoints
	Users   users.Endpoints
	Roles   roles.Endpoints

	identity *identity.Lazy
	idp      *identity.Client
	pageSize int
	log      zerolog.Logger
}

type options struct {
	identity   []identity.Option
	httpClient *http.Client
	registerer prometheus.Registerer
	log        zerolog.Logger
}

type Option func(*options)

// WithIdentityOptions passes options through to the identity client.
func WithIdentityOptions(opts ...identity.Option) Option {
	return func(o *options) { o.identity = append(o.identity, opts...) }
}

// WithHTTPClient sets the client used for console API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRegisterer registers the cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds the application context. Missing identity settings are fatal
// and reported as ErrMissingConfig.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{
		httpClient: &http.Client{},
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	idOpts := append([]identity.Option{
		identity.WithLogger(o.log.With().Str("component", "identity").Logger()),
	}, o.identity...)
	lazy := identity.NewLazy(cfg, idOpts...)
	idp, err := lazy.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}

	api, err := transport.New(cfg.GetDashboardURL(),
		transport.WithHTTPClient(o.httpClient),
		transport.WithLogger(o.log.With().Str("component", "transport").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	manager := session.NewManager(idp, api,
		session.WithRefreshThreshold(cfg.GetTokenRefreshThreshold()),
		session.WithExchangePath(cfg.GetTokenExchangePath()),
		session.WithExchangeTimeout(cfg.GetTokenExchangeTimeout()),
		session.WithInitOptions(identity.InitOptions{
			OnLoad:      identity.OnLoadLoginRequired,
			RedirectURI: cfg.GetRedirectURI(),
			PKCEMethod:  cfg.GetPKCEMethod(),
		}),
		session.WithLogger(o.log.With().Str("component", "session").Logger()),
	)

	reg := query.NewRegistry()
	app := &App{
		Session:  manager,
		Tenants:  tenants.Register(reg),
		Users:    users.Register(reg),
		Roles:    roles.Register(reg),
		identity: lazy,
		idp:      idp,
		pageSize: cfg.GetDefaultPageSize(),
		log:      o.log.With().Str("component", "dashboard").Logger(),
	}
	app.Store = query.NewStore(reg, api,
		query.WithTokenSource(manager),
		query.WithMetrics(query.NewMetrics(o.registerer)),
		query.WithKeepUnusedDataFor(cfg.GetKeepUnusedDataFor()),
		query.WithMaxUnusedEntries(cfg.GetMaxUnusedEntries()),
		query.WithStoreLogger(o.log.With().Str("component", "query").Logger()),
	)
	return app, nil
}

// Start restores a stored session or starts a login redirect. It reports
// whether the user is authenticated.
func (a *App) Start(ctx context.Context) (bool, error) {
	return a.Session.Initialize(ctx)
}

// HandleCallback completes a login redirect.
func (a *App) HandleCallback(ctx context.Context, callback *url.URL) error {
	return a.idp.HandleCallbackURL(ctx, callback)
}

// Identity returns the process-wide identity client.
func (a *App) Identity(ctx context.Context) (*identity.Client, error) {
	return a.identity.Get(ctx)
}

// RealmRoles returns the identity provider roles of the signed in user.
func (a *App) RealmRoles() []string {
	return utils.NestedStringSlice(a.Session.Session().ParsedClaims, "realm_access", "roles")
}

// Page fills in the configured page size.
func (a *App) Page(p pagination.Params) pagination.Params {
	return p.WithDefaultLimit(a.pageSize)
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.Session.Logout(ctx); err != nil {
		return err
	}
	a.log.Info().Msg("logged out")
	return nil
}

func (a *App) Close() {
	a.Store.Close()
	a.Session.Close()
}
