package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/observability"
)

// CertificateManager holds the current server certificate and client CA pool
// and swaps them when the PEM files on disk change. Handshakes always see a
// complete pair: a failed reload keeps the previous certificates.
type CertificateManager struct {
	mu sync.RWMutex

	serverCert *tls.Certificate
	caCertPool *x509.CertPool
	notAfter   time.Time

	config  config.TLSConfig
	watcher *CertWatcher
	metrics *observability.Metrics
	logger  *errors.Logger

	reloadCount        int64
	reloadFailureCount int64
	lastReloadTime     time.Time
	lastReloadError    string
}

// CertificateStatus summarizes the manager for /health and /stats.
type CertificateStatus struct {
	NotAfter           time.Time `json:"not_after"`
	ExpiresIn          string    `json:"expires_in"`
	AutoReload         bool      `json:"auto_reload"`
	ReloadCount        int64     `json:"reload_count"`
	ReloadFailureCount int64     `json:"reload_failure_count"`
	LastReloadTime     time.Time `json:"last_reload_time"`
	LastReloadError    string    `json:"last_reload_error,omitempty"`
}

// NewCertificateManager loads the initial certificates from tlsConfig.
func NewCertificateManager(tlsConfig config.TLSConfig, metrics *observability.Metrics, logger *errors.Logger) (*CertificateManager, error) {
	cm := &CertificateManager{
		config:  tlsConfig,
		metrics: metrics,
		logger:  logger,
	}
	if err := cm.load(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificates: %w", err)
	}
	return cm, nil
}

// Start begins watching the certificate files when auto reload is enabled.
func (cm *CertificateManager) Start() error {
	if !cm.config.AutoReload.Enabled {
		return nil
	}
	cm.watcher = NewCertWatcher(
		[]string{cm.config.CertFile, cm.config.KeyFile, cm.config.CAFile},
		cm.config.AutoReload.DebounceDelay,
		cm.triggerReload,
		cm.logger,
	)
	if err := cm.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start certificate watcher: %w", err)
	}
	return nil
}

// Stop stops the file watcher.
func (cm *CertificateManager) Stop() error {
	if cm.watcher == nil {
		return nil
	}
	return cm.watcher.Stop()
}

// GetCertificate implements tls.Config.GetCertificate.
func (cm *CertificateManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.serverCert == nil {
		return nil, fmt.Errorf("no server certificate available")
	}
	if time.Now().After(cm.notAfter) {
		cm.logger.Warn("Serving expired certificate",
			"not_after", cm.notAfter,
			"server_name", hello.ServerName)
	}
	return cm.serverCert, nil
}

// CACertPool returns the current client CA pool, nil outside mutual mode.
func (cm *CertificateManager) CACertPool() *x509.CertPool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.caCertPool
}

// Reload re-reads the certificate files.
func (cm *CertificateManager) Reload() error {
	err := cm.load()
	cm.recordReload(err)
	return err
}

// CheckExpiry returns the time left until the server certificate expires.
func (cm *CertificateManager) CheckExpiry() (time.Duration, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.notAfter.IsZero() {
		return 0, fmt.Errorf("no certificates loaded")
	}
	return time.Until(cm.notAfter), nil
}

// Status reports expiry and reload counters.
func (cm *CertificateManager) Status() CertificateStatus {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return CertificateStatus{
		NotAfter:           cm.notAfter,
		ExpiresIn:          time.Until(cm.notAfter).Round(time.Minute).String(),
		AutoReload:         cm.watcher != nil && cm.watcher.IsRunning(),
		ReloadCount:        cm.reloadCount,
		ReloadFailureCount: cm.reloadFailureCount,
		LastReloadTime:     cm.lastReloadTime,
		LastReloadError:    cm.lastReloadError,
	}
}

func (cm *CertificateManager) load() error {
	cert, err := tls.LoadX509KeyPair(cm.config.CertFile, cm.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate pair: %w", err)
	}

	leaf := cert.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return fmt.Errorf("failed to parse certificate: %w", err)
		}
	}

	var pool *x509.CertPool
	if cm.config.Mode == "mutual" {
		if pool, err = loadCAPool(cm.config.CAFile); err != nil {
			return err
		}
	}

	cm.mu.Lock()
	cm.serverCert = &cert
	cm.caCertPool = pool
	cm.notAfter = leaf.NotAfter
	cm.lastReloadTime = time.Now()
	cm.mu.Unlock()

	cm.logger.Info("TLS certificates loaded",
		"cert_file", cm.config.CertFile,
		"subject", leaf.Subject.CommonName,
		"not_after", leaf.NotAfter)
	return nil
}

func (cm *CertificateManager) triggerReload() {
	if err := cm.Reload(); err != nil {
		cm.logger.LogError(err, "Failed to reload certificates, keeping previous ones")
	}
}

func (cm *CertificateManager) recordReload(err error) {
	cm.mu.Lock()
	cm.reloadCount++
	if err != nil {
		cm.reloadFailureCount++
		cm.lastReloadError = err.Error()
	} else {
		cm.lastReloadError = ""
	}
	cm.mu.Unlock()

	cm.metrics.RecordCertReload(context.Background(), err == nil)
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caFile)
	}
	return pool, nil
}
