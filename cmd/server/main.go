package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bh-premnath-git/bhadminui/backend"
	"github.com/bh-premnath-git/bhadminui/internal/config"
	"github.com/bh-premnath-git/bhadminui/server"
)

func main() {
	c := config.New()
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	if err := run(c); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

// remoteOverride points the proxy at the in-process mock backend.
type remoteOverride struct {
	config.Config
	remote string
}

func (r remoteOverride) GetRemoteAPIURL() string { return r.remote }

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	var servers []*http.Server
	if addr := c.GetMockBackendAddr(); addr != "" && c.GetEnv() == "DEV" {
		mock, err := startMockBackend(c, addr)
		if err != nil {
			return err
		}
		servers = append(servers, mock)
		c = remoteOverride{Config: c, remote: "http://" + mock.Addr}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := server.New(c, server.WithRegistry(reg))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	console := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	servers = append(servers, console)

	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(console) }()

	select {
	case <-waitForStopSignal():
	case err := <-errs:
		returnError = err
	}
	return errors.Join(returnError, shutdown(servers...))
}

func startMockBackend(c config.Config, addr string) (*http.Server, error) {
	mock, err := backend.New(c.GetServiceAccount(),
		backend.WithLoginBaseURL(c.GetIdentityProviderURL()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mock backend: %w", err)
	}
	// Resolve ":0" style addresses before the proxy needs the URL.
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mock backend listen: %w", err)
	}
	s := &http.Server{Addr: ln.Addr().String(), Handler: mock, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msg("mock backend stopped")
		}
	}()
	log.Info().Str("addr", s.Addr).Msg("mock backend listening")
	return s, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(servers ...*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server.Shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
