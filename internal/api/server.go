package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/auth"
	"iot-monitor/internal/websocket"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName    = "IoT Monitor"
	serviceVersion = "1.0.0"
)

type Options struct {
	ExportLimit  int
	LiveInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	router  *mux.Router
	monitor *analytics.Monitor
	auth    *auth.Manager
	hub     *websocket.Hub
	opts    Options
	log     *slog.Logger
}

func NewServer(monitor *analytics.Monitor, authManager *auth.Manager, hub *websocket.Hub, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.ExportLimit <= 0 {
		opts.ExportLimit = 1000
	}
	if opts.LiveInterval <= 0 {
		opts.LiveInterval = 3 * time.Second
	}

	s := &Server{
		router:  mux.NewRouter(),
		monitor: monitor,
		auth:    authManager,
		hub:     hub,
		opts:    opts,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.instrument)

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/token", s.loginHandler).Methods("POST")
	s.router.Handle("/metrics/prometheus", promhttp.Handler())

	s.router.Handle("/api/data/live", s.auth.WebsocketMiddleware(http.HandlerFunc(s.liveHandler))).Methods("GET")

	data := s.router.PathPrefix("/api/data").Subrouter()
	data.Use(s.auth.Middleware)
	data.HandleFunc("/current", s.currentHandler).Methods("GET")
	data.HandleFunc("/history/{sensor_id}", s.historyHandler).Methods("GET")
	data.HandleFunc("/alerts", s.alertsHandler).Methods("GET")
	data.HandleFunc("/connection", s.connectionHandler).Methods("GET")
	data.HandleFunc("/threshold/{sensor_id}", s.thresholdHandler).Methods("PUT")
	data.HandleFunc("/statistics", s.statisticsHandler).Methods("GET")
	data.HandleFunc("/export/csv", s.exportCSVHandler).Methods("GET")
	data.HandleFunc("/export/excel", s.exportExcelHandler).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  30 * time.Second,
	}

	liveCtx, stopLive := context.WithCancel(ctx)
	defer stopLive()
	go s.hub.Run(liveCtx)
	go s.broadcastSnapshots(liveCtx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.log.Info("server is shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("could not gracefully shutdown the server", "error", err)
		}
	}()

	s.log.Info("server is ready to handle requests", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	<-done
	s.log.Info("server stopped")
	return nil
}

// broadcastSnapshots pushes a fresh snapshot to live clients on every tick.
func (s *Server) broadcastSnapshots(ctx context.Context) {
	ticker := time.NewTicker(s.opts.LiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.Clients() == 0 {
				continue
			}
			s.hub.Broadcast("snapshot", s.snapshot(ctx))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
