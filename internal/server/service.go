package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Matches the lifecycle methods of *http.Server
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service runs an HTTP server under a supervisor
type Service struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewService(server HTTPServer, shutdownTimeout time.Duration) *Service {
	return &Service{server: server, shutdownTimeout: shutdownTimeout}
}

func New(address string, handler http.Handler, shutdownTimeout time.Duration) *Service {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return NewService(server, shutdownTimeout)
}

func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already cancelled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		log.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

func (s *Service) String() string {
	return "http-server"
}
