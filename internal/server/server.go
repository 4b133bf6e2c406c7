// internal/server/server.go

// Package server exposes the donation platform over HTTP. All state changes
// go through the community orchestrators; the server only translates JSON
// to operations and errors to status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/community"
	"github.com/givecurve/givecurve/internal/convert"
	"github.com/givecurve/givecurve/internal/curve"
	"github.com/givecurve/givecurve/internal/ledger"
	"github.com/givecurve/givecurve/internal/registry"
	"github.com/givecurve/givecurve/internal/token"
	"github.com/givecurve/givecurve/internal/vault"
)

type Server struct {
	router   *chi.Mux
	registry *registry.Registry
	ledger   *ledger.Store
	logger   *zap.Logger
	srv      *http.Server
}

func New(addr string, reg *registry.Registry, led *ledger.Store, logger *zap.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		ledger:   led,
		logger:   logger.Named("server"),
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/communities", s.handleListCommunities)
		r.Route("/communities/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetCommunity)
			r.Post("/donations", s.handleDonate)
			r.Post("/sales", s.handleSell)
			r.Get("/quotes/buy", s.handleQuoteBuy)
			r.Get("/quotes/sell", s.handleQuoteSell)
			r.Get("/charity", s.handleCharityStats)
			r.Get("/charity/{donor}", s.handleCharityDonor)
			r.Post("/charity/disbursements", s.handleDisburse)
			r.Post("/signers", s.handleAddSigner)
			r.Post("/signers/removals", s.handleRemoveSigner)
		})
		r.Get("/events", s.handleEvents)
	})
}

// Start serves until ListenAndServe returns.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) community(w http.ResponseWriter, r *http.Request) *community.Community {
	name := chi.URLParam(r, "name")
	c, err := s.registry.GetCommunity(name)
	if err != nil {
		s.respondError(w, r, err)
		return nil
	}
	return c
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Response encoding failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrCommunityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vault.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientFunds),
		errors.Is(err, community.ErrLastSigner),
		errors.Is(err, community.ErrUnacknowledgedBalance),
		errors.Is(err, curve.ErrInvalidCurveState),
		errors.Is(err, curve.ErrInvalidAmount),
		errors.Is(err, token.ErrSupplyOverflow),
		errors.Is(err, errBadRequest):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, convert.ErrConversionFailed),
		errors.Is(err, registry.ErrNoConverter):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// parseAmount accepts a decimal string; amounts beyond 64 bits are routine.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, errors.Join(errBadRequest, errors.New("missing amount"))
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Join(errBadRequest, err)
	}
	return v, nil
}
