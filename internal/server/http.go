// Package server exposes the pipeline over HTTP: an HTML form at "/" that
// mirrors the single-page tool, a multipart JSON API under /api/v1, and
// /health and /stats endpoints.
package server

import (
	"context"
	"html/template"
	"sync"
	"time"

	"atsexpert/internal/ai"
	"atsexpert/internal/config"
	"atsexpert/internal/errors"
	"atsexpert/internal/observability"
	"atsexpert/internal/types"
)

// Evaluator runs one submission to completion
type Evaluator interface {
	Run(ctx context.Context, sub types.Submission) (*types.EvaluationResult, error)
}

// ModelHealth reports on the generative backend
type ModelHealth interface {
	GetModelInfo(ctx context.Context) *ai.ModelInfo
	CircuitBreakerStats() map[string]any
}

// ErrorResponse is the JSON body of every API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Dependencies are the collaborators a Server is built from. Health,
// Observability and VaultClient may be nil.
type Dependencies struct {
	Version       string
	Evaluator     Evaluator
	Health        ModelHealth
	Observability *observability.ObservabilityManager
	VaultClient   VaultClientInterface
}

// Server holds configuration for the HTTP server
type Server struct {
	Host    string
	Port    string
	Version string

	TLSConfig          config.TLSConfig
	CertificateManager *CertificateManager

	APIKeys      *APIKeyStore
	VaultWatcher *VaultWatcher

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxUploadSize is the document ceiling; MaxRequestSize bounds the whole
	// multipart body and leaves room for the job description and headers.
	MaxUploadSize  int64
	MaxRequestSize int64

	RateLimit   config.RateLimitConfig
	RateLimiter *RateLimiter

	Evaluator          Evaluator
	Health             ModelHealth
	HealthCheckTimeout time.Duration
	Observability      *observability.ObservabilityManager

	Logger *errors.Logger

	page      *template.Template
	startedAt time.Time
}

// multipartOverhead is added to MaxUploadSize to get MaxRequestSize
const multipartOverhead = 1 << 20

// NewServer creates a Server from the application configuration
func NewServer(cfg *config.Config, deps Dependencies, logger *errors.Logger) *Server {
	if logger == nil {
		logger = errors.Discard()
	}

	var rateLimiter *RateLimiter
	if cfg.Server.RateLimit.Enabled {
		rateLimiter = NewRateLimiter(
			cfg.Server.RateLimit.RequestsPerMin,
			cfg.Server.RateLimit.BurstCapacity,
			logger,
		)
	}

	keys := NewAPIKeyStore(cfg.Server.APIKeys)

	var vaultWatcher *VaultWatcher
	if deps.VaultClient != nil && cfg.Vault.Secrets.APIKeys != "" && cfg.Vault.WatchInterval > 0 {
		vaultWatcher = NewVaultWatcher(deps.VaultClient, cfg.Vault.Secrets.APIKeys,
			cfg.Vault.WatchInterval, keys, logger)
	}

	return &Server{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Version:            deps.Version,
		TLSConfig:          cfg.Server.TLS,
		APIKeys:            keys,
		VaultWatcher:       vaultWatcher,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        cfg.Server.IdleTimeout,
		MaxUploadSize:      cfg.App.MaxUploadSize,
		MaxRequestSize:     cfg.App.MaxUploadSize + multipartOverhead,
		RateLimit:          cfg.Server.RateLimit,
		RateLimiter:        rateLimiter,
		Evaluator:          deps.Evaluator,
		Health:             deps.Health,
		HealthCheckTimeout: cfg.Observability.HealthCheck.AIModelCheckTimeout,
		Observability:      deps.Observability,
		Logger:             logger,
		page:               pageTemplate,
		startedAt:          time.Now(),
	}
}

// APIKeyStore is the set of accepted API keys. It can be replaced at
// runtime by the Vault watcher.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewAPIKeyStore creates a store holding keys
func NewAPIKeyStore(keys []string) *APIKeyStore {
	s := &APIKeyStore{}
	s.Replace(keys)
	return s
}

// Replace swaps the whole key set
func (s *APIKeyStore) Replace(keys []string) {
	m := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key != "" {
			m[key] = struct{}{}
		}
	}
	s.mu.Lock()
	s.keys = m
	s.mu.Unlock()
}

// Enabled reports whether any key is configured
func (s *APIKeyStore) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) > 0
}

// Valid reports whether key is accepted
func (s *APIKeyStore) Valid(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Count returns the number of keys
func (s *APIKeyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
