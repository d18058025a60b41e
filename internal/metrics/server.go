package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the collectors over HTTP at /metrics.
type Server struct {
	endpoint string
	server   *http.Server
	log      *zap.SugaredLogger
}

// NewServer creates a metrics server that will listen on endpoint.
func NewServer(endpoint string, m *Metrics, log *zap.SugaredLogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		m.Registry(),
		promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}),
	))

	return &Server{
		endpoint: endpoint,
		server:   &http.Server{Handler: mux},
		log:      log.Named("metrics"),
	}
}

// Run serves until the context is canceled.
func (m *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", m.endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics listener: %w", err)
	}

	return m.Serve(ctx, listener)
}

// Serve serves on the given listener until the context is canceled.
func (m *Server) Serve(ctx context.Context, listener net.Listener) error {
	m.log.Infow("exposing metrics", zap.Stringer("addr", listener.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	m.log.Infow("stopping metrics server", zap.Stringer("addr", listener.Addr()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop metrics server: %w", err)
	}
	return nil
}
