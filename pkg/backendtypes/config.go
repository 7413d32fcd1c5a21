package backendtypes

import (
	"net"
	"strconv"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/bedrock"
)

// ProxyConfig defines the configuration for the proxy server
type ProxyConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	CORS     CORSConfig     `yaml:"cors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Bedrock  bedrock.Config `yaml:"bedrock"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Version         string        `yaml:"version"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 keeps long streams open
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps inbound request bodies
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type AuthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	APIPassword string   `yaml:"api_password"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	PublicPaths []string `yaml:"public_paths"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// UpstreamConfig tunes the HTTP transport used for Bedrock calls. Only the
// wait for response headers is bounded; streams may run for minutes.
type UpstreamConfig struct {
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
}

// Addr returns the host:port the server listens on
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
