package config

import (
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/bedrock"
)

// Default values for configuration fields.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 3000
	DefaultReadTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 10 << 20

	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"

	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"

	DefaultResponseHeaderTimeout = 60 * time.Second
	DefaultDialTimeout           = 10 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultMaxIdleConnsPerHost   = 10
)

// Defaults returns a configuration with every default applied. Files are
// decoded on top of it so that explicit false values survive.
func Defaults() backendtypes.ProxyConfig {
	cfg := backendtypes.ProxyConfig{
		Metrics: backendtypes.MetricsConfig{Enabled: DefaultMetricsEnabled},
		Auth: backendtypes.AuthConfig{
			PublicPaths: []string{"/health", "/status", "/version"},
		},
	}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills every unset field with its default value
func ApplyDefaults(cfg *backendtypes.ProxyConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Upstream.ResponseHeaderTimeout == 0 {
		cfg.Upstream.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = DefaultDialTimeout
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	if cfg.Bedrock.InferenceProfile == "" {
		cfg.Bedrock.InferenceProfile = bedrock.DefaultInferenceProfile
	}
}
