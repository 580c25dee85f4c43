package server

// logServerInfo logs the effective server setup once at startup
func (s *Server) logServerInfo(scheme string) {
	s.Logger.Info("Server configuration",
		"url", scheme+"://"+s.Host+":"+s.Port,
		"tls_mode", s.TLSConfig.Mode,
		"max_upload_bytes", s.MaxUploadSize,
		"max_request_bytes", s.MaxRequestSize,
		"observability", s.Observability.Enabled())

	s.Logger.Info("Available endpoints",
		"form", "GET|POST /",
		"evaluate", "POST /api/v1/evaluate",
		"ats_score", "POST /api/v1/ats-score",
		"health", "GET /health",
		"stats", "GET /stats")

	if s.APIKeys.Enabled() {
		s.Logger.Info("API authentication enabled",
			"key_count", s.APIKeys.Count(),
			"vault_rotation", s.VaultWatcher != nil)
	} else {
		s.Logger.Warn("API authentication disabled, /api endpoints are publicly accessible")
	}

	if s.RateLimiter != nil {
		s.Logger.Info("Rate limiting enabled",
			"requests_per_min", s.RateLimit.RequestsPerMin,
			"burst", s.RateLimit.BurstCapacity,
			"by_ip", s.RateLimit.ByIP,
			"by_api_key", s.RateLimit.ByAPIKey)
	} else {
		s.Logger.Warn("Rate limiting disabled")
	}
}
