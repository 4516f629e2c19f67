package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Server is the metrics HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     logger.Logger
}

// NewServer serves g on path, plus /health, at addr.
func NewServer(addr, path string, g prometheus.Gatherer, log logger.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if log == nil {
		log = logger.Nop()
	}

	router := mux.NewRouter()
	router.Handle(path, Handler(g)).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		router: router,
		logger: log,
	}
}

// HandleSnapshot serves the current snapshot of src as JSON on /snapshot.
// It must be called before Start or Serve.
func (s *Server) HandleSnapshot(src SnapshotSource) {
	s.router.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Snapshot()); err != nil {
			s.logger.Debug("metrics: failed to write snapshot", "err", err)
		}
	}).Methods(http.MethodGet)
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("metrics: serving", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return s.Serve(l)
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("metrics: stopping")
	return s.httpServer.Shutdown(ctx)
}
