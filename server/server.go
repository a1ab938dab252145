// Package server is the console's same-origin API. It forwards /api requests
// to the remote backend, swapping in the service-account credential for the
// token exchange, and exposes Prometheus metrics.
package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bh-premnath-git/bhadminui/internal/config"
)

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	upstream *http.Client
	log      zerolog.Logger

	registry *prometheus.Registry
	metrics  *Metrics
}

type Option func(*Server)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.upstream = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRegistry exports metrics from reg instead of a private registry, so
// other components can register on the same /metrics page.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func New(cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		upstream: &http.Client{Timeout: defaultUpstreamTimeout},
		log:      log.Logger.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	metrics, err := NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Registry is the registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
	}
}
