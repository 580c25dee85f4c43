package server

import (
	"crypto/tls"
	"fmt"
	"net/http"
)

// configureTLS attaches a tls.Config to httpServer for the server and
// mutual modes. Certificates are served through the CertificateManager so
// that a reload takes effect on the next handshake.
func (s *Server) configureTLS(httpServer *http.Server) error {
	switch s.TLSConfig.Mode {
	case "", "disabled":
		return nil
	case "server", "mutual":
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", s.TLSConfig.Mode)
	}

	cm, err := NewCertificateManager(s.TLSConfig, s.Observability.Metrics(), s.Logger)
	if err != nil {
		return err
	}
	if err := cm.Start(); err != nil {
		return err
	}
	s.CertificateManager = cm

	httpServer.TLSConfig = s.buildTLSConfig(cm)
	return nil
}

// buildTLSConfig creates the TLS configuration backed by cm
func (s *Server) buildTLSConfig(cm *CertificateManager) *tls.Config {
	tlsConfig := &tls.Config{
		MinVersion:     minTLSVersion(s.TLSConfig.MinVersion),
		GetCertificate: cm.GetCertificate,
	}

	if s.TLSConfig.Mode != "mutual" {
		tlsConfig.ClientAuth = tls.NoClientCert
		return tlsConfig
	}

	tlsConfig.ClientAuth = clientAuthPolicy(s.TLSConfig.ClientAuthPolicy)
	// A fresh config per handshake picks up a reloaded CA pool.
	tlsConfig.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		cfg := tlsConfig.Clone()
		cfg.GetConfigForClient = nil
		cfg.ClientCAs = cm.CACertPool()
		return cfg, nil
	}
	return tlsConfig
}

func minTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

func clientAuthPolicy(policy string) tls.ClientAuthType {
	switch policy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
