// Package backend is an in-process stand-in for the remote REST backend the
// console proxies to. It issues service-account tokens and serves tenant,
// user and role resources from in-memory repositories.
package backend

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bh-premnath-git/bhadminui/internal/config"
	"github.com/bh-premnath-git/bhadminui/roles"
	rolerepofakes "github.com/bh-premnath-git/bhadminui/roles/repofakes"
	"github.com/bh-premnath-git/bhadminui/tenants"
	tenantrepofakes "github.com/bh-premnath-git/bhadminui/tenants/repofakes"
	"github.com/bh-premnath-git/bhadminui/users"
	fakeuserrepo "github.com/bh-premnath-git/bhadminui/users/repofake"
)

const (
	RouteGenerateToken = "/bh-user/generate-token/"

	tenantPrefix = "/bh-tenant/"
	userPrefix   = "/bh-user/"
	rolePrefix   = "/bh-role/"

	DefaultTokenTTL = 5 * time.Minute
)

type Repos struct {
	Tenants tenants.Repo
	Users   users.UserRepo
	Roles   roles.Repo
}

// NewFakeRepos returns empty in-memory repositories.
func NewFakeRepos() Repos {
	return Repos{
		Tenants: tenantrepofakes.NewFakeTenantRepo(),
		Users:   fakeuserrepo.NewFakeUserRepo(),
		Roles:   rolerepofakes.NewFakeRoleRepo(),
	}
}

type Backend struct {
	mux     *http.ServeMux
	repos   Repos
	account config.ServiceAccount
	log     zerolog.Logger

	signingKey   []byte
	tokenTTL     time.Duration
	loginBaseURL string
	now          func() time.Time
}

type Option func(*Backend)

func WithRepos(r Repos) Option {
	return func(b *Backend) { b.repos = r }
}

func WithSigningKey(key []byte) Option {
	return func(b *Backend) { b.signingKey = key }
}

func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) { b.tokenTTL = d }
}

// WithLoginBaseURL sets the identity provider URL used to build tenant login
// URLs, e.g. https://sso.example.com.
func WithLoginBaseURL(u string) Option {
	return func(b *Backend) { b.loginBaseURL = u }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New returns a backend that issues tokens only to account.
func New(account config.ServiceAccount, opts ...Option) (*Backend, error) {
	b := &Backend{
		mux:      http.NewServeMux(),
		repos:    NewFakeRepos(),
		account:  account,
		log:      log.Logger.With().Str("component", "backend").Logger(),
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.signingKey) == 0 {
		b.signingKey = make([]byte, 32)
		if _, err := rand.Read(b.signingKey); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}
	if err := b.seedRoles(); err != nil {
		return nil, err
	}
	b.initRoutes()
	return b, nil
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *Backend) Repos() Repos { return b.repos }

func (b *Backend) initRoutes() {
	b.mux.HandleFunc("POST "+RouteGenerateToken+"{$}", b.generateToken())

	b.mux.HandleFunc("GET "+tenantPrefix+"list/{$}", b.requireToken(b.listTenants()))
	b.mux.HandleFunc("POST "+tenantPrefix+"{$}", b.requireToken(b.createTenant()))
	b.mux.HandleFunc("GET "+tenantPrefix+"{id}/{$}", b.requireToken(b.getTenant()))
	b.mux.HandleFunc("PATCH "+tenantPrefix+"{id}/{$}", b.requireToken(b.updateTenant()))
	b.mux.HandleFunc("DELETE "+tenantPrefix+"{id}/{$}", b.requireToken(b.deleteTenant()))

	b.mux.HandleFunc("GET "+userPrefix+"list/{$}", b.requireToken(b.listUsers()))
	b.mux.HandleFunc("POST "+userPrefix+"{$}", b.requireToken(b.createUser()))
	b.mux.HandleFunc("GET "+userPrefix+"{id}/{$}", b.requireToken(b.getUser()))
	b.mux.HandleFunc("PATCH "+userPrefix+"{id}/{$}", b.requireToken(b.updateUser()))
	b.mux.HandleFunc("DELETE "+userPrefix+"{id}/{$}", b.requireToken(b.deleteUser()))

	b.mux.HandleFunc("GET "+rolePrefix+"list/{$}", b.requireToken(b.listRoles()))
	b.mux.HandleFunc("POST "+rolePrefix+"{$}", b.requireToken(b.createRole()))
	b.mux.HandleFunc("GET "+rolePrefix+"{id}/{$}", b.requireToken(b.getRole()))
	b.mux.HandleFunc("PATCH "+rolePrefix+"{id}/{$}", b.requireToken(b.updateRole()))
	b.mux.HandleFunc("DELETE "+rolePrefix+"{id}/{$}", b.requireToken(b.deleteRole()))
}
