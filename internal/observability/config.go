package observability

import (
	"time"

	"atsexpert/internal/config"
)

// Settings is the resolved observability configuration
type Settings struct {
	ServiceName        string
	ServiceVersion     string
	ServiceInstance    string
	Enabled            bool
	ConsoleOutput      bool
	PrettyPrint        bool
	SampleRate         float64
	CollectionInterval time.Duration
	Prometheus         PrometheusConfig
	OTLP               config.OTLPConfig
}

// SettingsFromConfig resolves settings from application config. The build
// version is used when no service version is configured.
func SettingsFromConfig(cfg config.ObservabilityConfig, version string) Settings {
	serviceVersion := cfg.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = version
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "atsexpert"
	}

	interval := cfg.Metrics.CollectionInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	return Settings{
		ServiceName:        serviceName,
		ServiceVersion:     serviceVersion,
		ServiceInstance:    cfg.ServiceInstance,
		Enabled:            cfg.Enabled,
		ConsoleOutput:      cfg.ConsoleOutput,
		PrettyPrint:        cfg.Console.PrettyPrint,
		SampleRate:         sampleRate,
		CollectionInterval: interval,
		Prometheus:         GetPrometheusConfig(cfg.Prometheus),
		OTLP:               cfg.OTLP,
	}
}
