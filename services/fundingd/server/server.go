package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fundingbridge/services/fundingd/reconciler"
)

// Ticker is the slice of the reconciler the HTTP layer depends on.
type Ticker interface {
	TriggerTick(ctx context.Context) (reconciler.TickReport, bool, error)
	Status() reconciler.Status
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
}

// Server hosts the health, metrics and tick-trigger endpoints for fundingd.
type Server struct {
	cfg    Config
	ticker Ticker
	logger *slog.Logger
	auth   *Authenticator
	router http.Handler
}

// New constructs the HTTP server. The tick endpoint is always authenticated;
// health and metrics are open.
func New(cfg Config, ticker Ticker, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if ticker == nil {
		return nil, fmt.Errorf("ticker required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{cfg: cfg, ticker: ticker, logger: logger, auth: auth}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Method(http.MethodGet, "/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "fundingd.health"))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Group(func(priv chi.Router) {
		priv.Use(s.auth.Middleware)
		priv.Method(http.MethodGet, "/tick", otelhttp.NewHandler(http.HandlerFunc(s.handleTick), "fundingd.tick"))
		priv.Method(http.MethodPost, "/tick", otelhttp.NewHandler(http.HandlerFunc(s.handleTick), "fundingd.tick"))
		priv.Method(http.MethodGet, "/status", otelhttp.NewHandler(http.HandlerFunc(s.handleStatus), "fundingd.status"))
	})
	s.router = r
	return s, nil
}

// Handler exposes the configured router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", slog.String("address", s.cfg.ListenAddress))
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.ticker.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"running":   status.Running,
		"lastRunId": status.LastRun.RunID,
	})
}

type tickResponse struct {
	OK                bool                  `json:"ok"`
	ReusedInFlightRun bool                  `json:"reusedInFlightRun"`
	Result            reconciler.TickReport `json:"result"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report, shared, err := s.ticker.TriggerTick(r.Context())
	if err != nil {
		s.logger.Error("triggered tick failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, tickResponse{OK: true, ReusedInFlightRun: shared, Result: report})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ticker.Status())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
