package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/pkg/broker"
)

// Server provides the HTTP server for the emulator.
//
// One listener serves both surfaces:
//   - admin entity CRUD under /{namespace} with Atom/XML bodies
//   - message, session, and dead-letter operations with JSON bodies
//   - GET /health and /health/ready probes
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	broker       *broker.Broker
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new HTTP server for the given broker.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Defaults are applied here to ensure the server works correctly even when
// created directly (e.g., in tests). This is idempotent with the defaults
// applied during config loading.
func NewServer(config APIConfig, b *broker.Broker) *Server {
	config.applyDefaults()

	router := NewRouter(b, config)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		broker: b,
		config: config,
	}
}

// Start starts the HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", s.server.Addr,
			"namespace", s.config.Namespace,
		)
		logger.Debug("endpoints available",
			"admin", fmt.Sprintf("http://%s/%s/$Resources/Queues", s.server.Addr, s.config.Namespace),
			"health", fmt.Sprintf("http://%s/health", s.server.Addr),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		// Create new context with timeout for graceful shutdown
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
