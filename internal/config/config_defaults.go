package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-1.5-flash"
	// DefaultAITimeout bounds each generative call.
	DefaultAITimeout = 30 * time.Second
	// DefaultMaxUploadSize is the upload ceiling (100 MiB).
	DefaultMaxUploadSize int64 = 100 * 1024 * 1024
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", DefaultModel)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.timeout", DefaultAITimeout)
	v.SetDefault("ai.prompts.evaluation", "")
	v.SetDefault("ai.prompts.evaluationFile", "")
	v.SetDefault("ai.prompts.atsScoring", "")
	v.SetDefault("ai.prompts.atsScoringFile", "")

	// Off by default: a breaker is state shared between submissions.
	v.SetDefault("ai.circuitBreaker.enabled", false)
	v.SetDefault("ai.circuitBreaker.maxRequests", 3)
	v.SetDefault("ai.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("ai.circuitBreaker.minRequests", 3)
	v.SetDefault("ai.circuitBreaker.failureThreshold", 0.6)

	// Rasterizer
	v.SetDefault("rasterizer.engineDir", "")
	v.SetDefault("rasterizer.enginePath", "")

	// Server. Write timeout has to cover rasterizing plus the AI call.
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 90*time.Second)
	v.SetDefault("server.idleTimeout", 120*time.Second)

	v.SetDefault("server.tls.mode", "disabled") // disabled, server, mutual
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.tls.autoReload.enabled", true)
	v.SetDefault("server.tls.autoReload.debounceDelay", time.Second)

	v.SetDefault("server.apiKeys", []string{})

	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 30)
	v.SetDefault("server.rateLimit.burstCapacity", 5)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// App
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxUploadSize", DefaultMaxUploadSize)

	// Vault
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.watchInterval", 0)
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")

	// Observability (off unless asked for)
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "atsexpert")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.serviceInstance", "")
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.aiModelCheckTimeout", 10*time.Second)
}
