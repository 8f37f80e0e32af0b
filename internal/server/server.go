/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the player together: database, event bus, companion
// client and socket, the playout director, and the local HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/signbeam/signbeam_player/internal/api"
	"github.com/signbeam/signbeam_player/internal/companion"
	"github.com/signbeam/signbeam_player/internal/config"
	"github.com/signbeam/signbeam_player/internal/db"
	"github.com/signbeam/signbeam_player/internal/events"
	"github.com/signbeam/signbeam_player/internal/playout"
	"github.com/signbeam/signbeam_player/internal/position"
	"github.com/signbeam/signbeam_player/internal/provider"
	"github.com/signbeam/signbeam_player/internal/telemetry"
	"github.com/signbeam/signbeam_player/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	bus       *events.Bus
	positions position.Store
	companion *provider.Client
	director  *playout.Director
	listener  *companion.Listener
	api       *api.API
	checker   *version.Checker

	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	bgErr    chan error
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(otelhttp.NewMiddleware("signbeam-player-api"))
	router.Use(telemetry.MetricsMiddleware)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
		bgErr:  make(chan error, 4),
	}

	if err := s.initDependencies(); err != nil {
		return nil, err
	}

	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	switch s.cfg.PositionBackend {
	case config.PositionRedis:
		store, err := position.NewRedisStore(position.RedisConfig{
			Addr:           s.cfg.RedisAddr,
			Password:       s.cfg.RedisPassword,
			DB:             s.cfg.RedisDB,
			DisableOnError: true,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("init redis position store: %w", err)
		}
		s.positions = store
		s.DeferClose(store.Close)
	default:
		store, err := position.NewGormStore(database)
		if err != nil {
			return fmt.Errorf("init position store: %w", err)
		}
		s.positions = store
	}

	s.companion = provider.New(provider.Config{
		BaseURL:    s.cfg.CompanionBaseURL,
		LicenseKey: s.cfg.LicenseKey,
	}, s.logger)

	director, err := playout.New(playout.Config{
		PlaylistID:             s.cfg.PlaylistID,
		VendorAdPosition:       s.cfg.VendorAdPosition,
		LivestreamPollInterval: s.cfg.LivestreamPollInterval(),
		VendorReportDelay:      s.cfg.VendorReportDelay(),
		ExhaustedRetryInterval: s.cfg.ExhaustedRetryInterval(),
		HardRestartThreshold:   s.cfg.HardRestartThreshold,
		Driver: playout.DriverConfig{
			DefaultDuration: s.cfg.DefaultDuration(),
		},
	}, s.companion, s.companion, s.companion, s.positions, database, s.bus, s.logger)
	if err != nil {
		return fmt.Errorf("init director: %w", err)
	}
	s.director = director

	s.listener = companion.NewListener(s.cfg.CompanionSocketURL, s.bus, s.logger)
	s.checker = version.NewChecker(s.logger)
	s.api = api.New(director, database, s.bus, s.checker, s.logger)

	return nil
}

func (s *Server) configureRoutes() {
	s.api.Routes(s.router)
}

// Router returns the HTTP router.
func (s *Server) Router() chi.Router {
	return s.router
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Bus returns the event bus.
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Director returns the playout director.
func (s *Server) Director() *playout.Director {
	return s.director
}

// StartBackground launches the director, companion socket listener,
// metrics endpoint, and event plumbing.
func (s *Server) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.director.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("director exited")
			select {
			case s.bgErr <- err:
			default:
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("companion socket listener exited")
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runEventPlumbing(ctx)
	}()

	s.checker.Start(ctx)

	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("bind", s.cfg.MetricsBind).Msg("metrics server listening")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
	}
}

// runEventPlumbing routes bus events that cross component boundaries.
func (s *Server) runEventPlumbing(ctx context.Context) {
	playlistUpdated := s.bus.Subscribe(events.EventPlaylistUpdated)
	defer s.bus.Unsubscribe(events.EventPlaylistUpdated, playlistUpdated)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-playlistUpdated:
			if !ok {
				return
			}
			s.logger.Info().Msg("companion pushed playlist update, refreshing")
			s.director.Refresh()
		}
	}
}

// BackgroundError reports a fatal background failure, if one occurred.
func (s *Server) BackgroundError() <-chan error {
	return s.bgErr
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.checker.Stop()
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

// DeferClose registers fn to run during Close, in reverse order.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close shuts down background workers, HTTP servers, and storage.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
