package server

import (
	"fmt"
	"sync"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"
)

// VaultClientInterface is the part of the Vault client the watcher needs
type VaultClientInterface interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// VaultWatcher polls the KVv2 secret holding the server API keys and
// replaces the key set whenever the secret version moves forward.
type VaultWatcher struct {
	mu sync.RWMutex

	client       VaultClientInterface
	secretPath   string
	pollInterval time.Duration
	keys         *APIKeyStore
	logger       *errors.Logger

	stop        chan struct{}
	running     bool
	lastVersion int64
	lastError   string
}

// NewVaultWatcher creates a watcher that updates keys from secretPath
func NewVaultWatcher(client VaultClientInterface, secretPath string, pollInterval time.Duration, keys *APIKeyStore, logger *errors.Logger) *VaultWatcher {
	return &VaultWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		keys:         keys,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start begins polling
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()

	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}
	if vw.pollInterval <= 0 {
		return fmt.Errorf("vault watcher poll interval must be positive")
	}
	vw.running = true
	go vw.pollLoop()

	vw.logger.Info("Vault API key watcher started",
		"secret_path", vw.secretPath,
		"poll_interval", vw.pollInterval)
	return nil
}

// Stop stops polling
func (vw *VaultWatcher) Stop() {
	vw.mu.Lock()
	defer vw.mu.Unlock()

	if !vw.running {
		return
	}
	close(vw.stop)
	vw.running = false
	vw.logger.Info("Vault API key watcher stopped")
}

func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := vw.poll(); err != nil {
				vw.logger.LogError(err, "Failed to check Vault for API key updates",
					"secret_path", vw.secretPath)
			}
		case <-vw.stop:
			return
		}
	}
}

// poll reads the secret once and swaps the key set if its version is newer
// than the last one applied. It reports whether the keys were replaced.
func (vw *VaultWatcher) poll() (bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		vw.setError(err)
		return false, fmt.Errorf("failed to read secret: %w", err)
	}

	vw.mu.RLock()
	last := vw.lastVersion
	vw.mu.RUnlock()
	if secret.Version <= last {
		return false, nil
	}

	raw, ok := secret.Data["keys"].(string)
	if !ok {
		err := fmt.Errorf("secret %s has no string 'keys' field", vw.secretPath)
		vw.setError(err)
		return false, err
	}
	keys := config.ParseAPIKeys(raw)
	if len(keys) == 0 {
		// An empty list would silently turn authentication off.
		err := fmt.Errorf("secret %s version %d has no API keys", vw.secretPath, secret.Version)
		vw.setError(err)
		return false, err
	}

	vw.keys.Replace(keys)

	vw.mu.Lock()
	vw.lastVersion = secret.Version
	vw.lastError = ""
	vw.mu.Unlock()

	vw.logger.Info("API keys rotated from Vault",
		"secret_path", vw.secretPath,
		"version", secret.Version,
		"count", len(keys))
	return true, nil
}

func (vw *VaultWatcher) setError(err error) {
	vw.mu.Lock()
	vw.lastError = err.Error()
	vw.mu.Unlock()
}

// Status returns the watcher state for /stats
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()

	status := map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
	if vw.lastError != "" {
		status["last_error"] = vw.lastError
	}
	return status
}
