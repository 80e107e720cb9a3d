package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/metrics"
	"go.uber.org/atomic"
)

type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger
	// Metrics is shared with the resolver. A new server is created when nil.
	Metrics *metrics.MetricsServer

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server exposes a Handler together with health and drain endpoints.
type Server struct {
	cfg      *HTTPServerConfig
	log      *slog.Logger
	draining atomic.Bool

	api        *http.Server
	metricsSrv *metrics.MetricsServer
	handler    *Handler
}

func New(cfg *HTTPServerConfig, handler *Handler) (*Server, error) {
	metricsSrv := cfg.Metrics
	if metricsSrv == nil {
		var err error
		if metricsSrv, err = metrics.New(common.PackageName, cfg.MetricsAddr); err != nil {
			return nil, err
		}
	}

	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		metricsSrv: metricsSrv,
		handler:    handler,
	}
	srv.api = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Group(func(r chi.Router) {
		r.Use(srv.httpLogger)

		r.Route("/api/storage", func(r chi.Router) {
			r.Get("/config", srv.handler.HandleConfig)
			r.Post("/resolve", srv.handler.HandleResolve)
		})

		r.Get("/livez", srv.handleLivenessCheck)
		r.Get("/readyz", srv.handleReadinessCheck)
		r.Get("/drain", srv.handleDrain)
		r.Get("/undrain", srv.handleUndrain)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(`{"status":"` + status + `"}`))
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

// handleReadinessCheck fails while draining, before the first successful
// resolution and while the settings sink is unreachable.
func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if srv.draining.Load() || !srv.handler.Ready(r.Context()) {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (srv *Server) handleDrain(w http.ResponseWriter, _ *http.Request) {
	if srv.draining.Swap(true) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}

	srv.log.Info("Draining, readiness disabled", "drainDuration", srv.cfg.DrainDuration)
	time.AfterFunc(srv.cfg.DrainDuration, func() {
		srv.log.Info("Drain period completed")
	})
	writeStatus(w, http.StatusOK, "draining")
}

func (srv *Server) handleUndrain(w http.ResponseWriter, _ *http.Request) {
	if !srv.draining.Swap(false) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}

	srv.log.Info("Drain cancelled, readiness enabled")
	writeStatus(w, http.StatusOK, "ready")
}

// RunInBackground starts the API listener and, when MetricsAddr is set, the
// metrics listener.
func (srv *Server) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go srv.serve("metrics", srv.cfg.MetricsAddr, srv.metricsSrv.ListenAndServe)
	}
	go srv.serve("api", srv.cfg.ListenAddr, srv.api.ListenAndServe)
}

func (srv *Server) serve(name, addr string, listen func() error) {
	srv.log.Info("Starting listener", "listener", name, "address", addr)
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srv.log.Error("Listener failed", "listener", name, "err", err)
	}
}

// Shutdown stops both listeners, each within GracefulShutdownDuration.
func (srv *Server) Shutdown() {
	srv.shutdown("api", srv.api.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.shutdown("metrics", srv.metricsSrv.Shutdown)
	}
}

func (srv *Server) shutdown(name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := stop(ctx); err != nil {
		srv.log.Error("Graceful shutdown failed", "listener", name, "err", err)
		return
	}
	srv.log.Info("Listener gracefully stopped", "listener", name)
}
