package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowpool/internal/logging"
)

// HealthFunc reports whether the daemon considers itself healthy.
type HealthFunc func() error

// Server serves /metrics and /healthz.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *slog.Logger
	done     chan struct{}
}

// NewRouter builds the HTTP routes for gatherer and health.
func NewRouter(gatherer prometheus.Gatherer, health HealthFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if health != nil {
			if err := health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintln(w, err.Error())
				return
			}
		}
		fmt.Fprintln(w, "ok")
	})
	return r
}

// Start listens on bind and serves handler in the background.
func Start(bind string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", bind, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(s.logger, "metrics server stopped", "metrics_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics and health endpoints unavailable"),
			)
		}
	}()
	s.logger.Info("metrics endpoint listening",
		logging.String("addr", listener.Addr().String()),
		logging.String(logging.FieldEventType, "metrics_listening"),
	)
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down. A nil server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
