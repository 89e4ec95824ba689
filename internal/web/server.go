// Package web provides a lightweight read-only dashboard and API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/storage"
	"github.com/user/fleetpulse/internal/util"
)

// Server is the web server.
type Server struct {
	db      *storage.DB
	config  *util.Config
	port    int
	metrics *metrics.Metrics
	srv     *http.Server
}

// NewServer creates a new web server. m is the daemon's registry when the
// server runs inside the daemon; nil creates a registry fed from the database.
func NewServer(db *storage.DB, cfg *util.Config, port int, m *metrics.Metrics) *Server {
	return &Server{
		db:      db,
		config:  cfg,
		port:    port,
		metrics: m,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	h := NewHandlers(s.db, s.config)

	mux.HandleFunc("/", h.Dashboard)
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/api/hosts", h.APIGetHosts)
	mux.HandleFunc("/api/events", h.APIGetEvents)
	mux.HandleFunc("/api/tasks", h.APIGetTasks)
	mux.HandleFunc("/api/status", h.APIGetStatus)
	mux.HandleFunc("/report", h.DownloadReport)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	} else {
		mux.Handle("/metrics", h.standaloneMetrics(metrics.New()))
	}

	return mux
}

// Start starts the web server and blocks until it is shut down.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.srv.Shutdown(ctx)
	}()

	util.Info("Web server starting on port %d", s.port)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop stops the web server.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
