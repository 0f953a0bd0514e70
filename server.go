package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/LexiconIndonesia/tesauro-crawler/crawlers/tesauro"
	"github.com/LexiconIndonesia/tesauro-crawler/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

type AppHttpServer struct {
	router *chi.Mux
	cfg    config.Config
	server *http.Server
	svc    *tesauro.Service
	logs   handler.LogStore
	deps   map[string]handler.Pinger
}

func NewAppHttpServer(cfg config.Config, svc *tesauro.Service) *AppHttpServer {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	return &AppHttpServer{
		router: r,
		cfg:    cfg,
		svc:    svc,
		deps:   make(map[string]handler.Pinger),
	}
}

// SetLogStore enables the run logs endpoint.
func (s *AppHttpServer) SetLogStore(logs handler.LogStore) {
	s.logs = logs
}

// AddDependency registers a backing service for the readiness check.
func (s *AppHttpServer) AddDependency(name string, dep handler.Pinger) {
	s.deps[name] = dep
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	r.Mount("/health", handler.NewHealthHandler(s.deps).Router())

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/runs", handler.NewRunHandler(s.svc, s.logs).Router())
		r.Mount("/records", handler.NewRecordHandler(s.svc).Router())
	})
}

func (s *AppHttpServer) start() error {
	log.Info().Str("address", s.cfg.Listen.Addr()).Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         s.cfg.Listen.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
