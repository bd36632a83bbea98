package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/ruteri/redact-client/common"
	"github.com/ruteri/redact-client/metrics"
	"go.uber.org/atomic"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// Metrics is the metrics server whose collectors the handler updates.
	// One is created when nil.
	Metrics *metrics.MetricsServer

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// AllowedOrigins lists CORS origins for the proxy route. Empty allows
	// any origin.
	AllowedOrigins []string

	// HealthCheck backs /healthz. Nil reports healthy.
	HealthCheck func(ctx context.Context) error

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

// New creates the server. handlerFn receives the metrics collectors so the
// handler can be built against the same registry the server exports.
func New(cfg *HTTPServerConfig, handlerFn func(*metrics.Collectors) *Handler) (srv *Server, err error) {
	metricsSrv := cfg.Metrics
	if metricsSrv == nil {
		metricsSrv, err = metrics.New(common.PackageName, cfg.MetricsAddr)
		if err != nil {
			return nil, err
		}
	}

	srv = &Server{
		cfg:        cfg,
		log:        cfg.Log,
		srv:        nil,
		metricsSrv: metricsSrv,
		handler:    handlerFn(metricsSrv.Collectors()),
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)
		r.Use(srv.corsHandler().Handler)
		srv.handler.RegisterRoutes(r)
	})

	// Health and diagnostic endpoints
	mux.With(srv.httpLogger).Get("/healthz", srv.handleHealthCheck)
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// corsHandler allows the embedding pages to call the routes from script.
// Credentials are never shared cross-origin; the session cookie only travels
// on iframe navigations.
func (srv *Server) corsHandler() *cors.Cors {
	origins := srv.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	})
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{Status: status})
}

// handleHealthCheck reports whether the storage behind the daemon answers.
func (srv *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if srv.cfg.HealthCheck != nil {
		if err := srv.cfg.HealthCheck(r.Context()); err != nil {
			srv.log.Warn("Health check failed", "err", err)
			writeStatus(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeStatus(w, http.StatusOK, "healthy")
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if srv.isReady.Load() {
		writeStatus(w, http.StatusOK, "ready")
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, "not ready")
}

// handleDrain marks the server not ready and holds the request for the drain
// period, so a caller that waits on it knows load balancers have noticed.
func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.CompareAndSwap(true, false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	srv.log.Info("Server marked as not ready", "drainDuration", srv.cfg.DrainDuration)

	timer := time.NewTimer(srv.cfg.DrainDuration)
	defer timer.Stop()
	select {
	case <-timer.C:
		srv.log.Info("Drain period completed")
	case <-r.Context().Done():
	}
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.CompareAndSwap(false, true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	srv.log.Info("Server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

// Handler returns the router, for tests and embedding.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) RunInBackground() {
	// metrics
	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.With("metricsAddress", srv.cfg.MetricsAddr).Info("Starting metrics server")
			err := srv.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// api
	go func() {
		var err error
		if srv.cfg.TLSCertFile != "" && srv.cfg.TLSKeyFile != "" {
			srv.log.Info("Starting HTTPS server", "listenAddress", srv.cfg.ListenAddr)
			err = srv.srv.ListenAndServeTLS(srv.cfg.TLSCertFile, srv.cfg.TLSKeyFile)
		} else {
			srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
			err = srv.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones, up to
// GracefulShutdownDuration per server.
func (srv *Server) Shutdown() {
	srv.shutdownOne("HTTP server", srv.srv.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.shutdownOne("Metrics server", srv.metricsSrv.Shutdown)
	}
}

func (srv *Server) shutdownOne(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", "server", name, "err", err)
		return
	}
	srv.log.Info("Gracefully stopped", "server", name)
}
