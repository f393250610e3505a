// Package services adapts ordinary long-lived collaborators — an
// *http.Server here — to the suture.Service interface the tree expects,
// so they can be supervised alongside the Worker and the Playback
// Poller instead of being started and stopped by hand in main.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer is the subset of *http.Server's lifecycle this package
// needs, so tests can substitute a fake instead of binding a real port.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTPServer as a suture.Service: it
// converts the blocking ListenAndServe/Shutdown pair into a single
// context-aware Serve, so the admin surface can sit in the tree's api
// group next to nothing else and still shut down in step with the rest
// of the process.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService constructs an HTTPServerService. shutdownTimeout
// bounds how long Shutdown waits for in-flight requests to drain; zero
// or negative uses a 10s default.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout, name: "admin-http"}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements suture.Service.
func (h *HTTPServerService) String() string { return h.name }
