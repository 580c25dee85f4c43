package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// shutdownTimeout bounds the drain of in-flight submissions
const shutdownTimeout = 30 * time.Second

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down
// gracefully
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := s.newHTTPServer()
	if err := s.configureTLS(httpServer); err != nil {
		return fmt.Errorf("failed to set up TLS: %w", err)
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", httpServer.Addr, err)
	}

	return s.serve(ctx, httpServer, ln)
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(s.Host, s.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  s.IdleTimeout,
	}
}

// serve runs httpServer on ln until ctx is done
func (s *Server) serve(ctx context.Context, httpServer *http.Server, ln net.Listener) error {
	if s.VaultWatcher != nil {
		if err := s.VaultWatcher.Start(); err != nil {
			s.Logger.LogError(err, "Failed to start Vault API key watcher")
		}
	}

	scheme := "http"
	if httpServer.TLSConfig != nil {
		scheme = "https"
	}
	s.logServerInfo(scheme)

	serverErrors := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting HTTP server",
			"address", ln.Addr().String(),
			"tls_enabled", httpServer.TLSConfig != nil)

		var err error
		if httpServer.TLSConfig != nil {
			// Certificates come from TLSConfig.GetCertificate
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		s.cleanup()
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.Logger.Info("Received shutdown signal, starting graceful shutdown")
		return s.performGracefulShutdown(httpServer)
	}
}

// performGracefulShutdown handles the graceful shutdown process
func (s *Server) performGracefulShutdown(httpServer *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.cleanup()

	s.Logger.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.LogError(err, "Failed to shutdown server gracefully, forcing close")
		return httpServer.Close()
	}

	s.Logger.Info("Server shutdown completed successfully")
	return nil
}

// cleanup stops the background watchers and the rate limiter
func (s *Server) cleanup() {
	if s.CertificateManager != nil {
		if err := s.CertificateManager.Stop(); err != nil {
			s.Logger.LogError(err, "Failed to stop certificate manager")
		}
	}
	if s.VaultWatcher != nil {
		s.VaultWatcher.Stop()
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Close()
	}
}
