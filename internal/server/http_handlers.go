package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// certExpiryWarning marks a certificate as unhealthy ahead of expiry
const certExpiryWarning = 7 * 24 * time.Hour

// healthHandler reports model availability, breaker state and certificate
// expiry. Any unhealthy component turns the status to degraded and 503.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "atsexpert",
		"version": s.Version,
	}
	healthy := true

	if s.Health != nil {
		timeout := s.HealthCheckTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		info := s.Health.GetModelInfo(ctx)
		response["ai_model"] = info
		if info == nil || !info.Available {
			healthy = false
		}
		if breaker := s.Health.CircuitBreakerStats(); breaker != nil {
			response["circuit_breaker"] = breaker
		}
	}

	if s.CertificateManager != nil {
		status := s.CertificateManager.Status()
		certHealthy := true
		if left, err := s.CertificateManager.CheckExpiry(); err != nil || left < certExpiryWarning {
			certHealthy = false
		}
		response["certificates"] = map[string]any{
			"healthy": certHealthy,
			"status":  status,
		}
		if !certHealthy {
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// statsHandler provides server statistics
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"version":          s.Version,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"max_upload_size":  s.MaxUploadSize,
		"max_request_size": s.MaxRequestSize,
		"auth": map[string]any{
			"enabled":   s.APIKeys.Enabled(),
			"key_count": s.APIKeys.Count(),
		},
	}

	if s.RateLimiter != nil {
		rateStats := s.RateLimiter.GetStats()
		rateStats["enabled"] = true
		rateStats["by_ip"] = s.RateLimit.ByIP
		rateStats["by_api_key"] = s.RateLimit.ByAPIKey
		stats["rate_limiting"] = rateStats
	} else {
		stats["rate_limiting"] = map[string]any{"enabled": false}
	}

	if s.Health != nil {
		if breaker := s.Health.CircuitBreakerStats(); breaker != nil {
			stats["circuit_breaker"] = breaker
		}
	}

	if s.VaultWatcher != nil {
		stats["vault_watcher"] = s.VaultWatcher.Status()
	}

	if s.CertificateManager != nil {
		stats["certificates"] = s.CertificateManager.Status()
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeErrorResponse writes an error response in JSON format
func writeErrorResponse(w http.ResponseWriter, errorMsg, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errorMsg,
		Message: message,
	})
}
