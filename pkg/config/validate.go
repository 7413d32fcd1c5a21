package config

import (
	"fmt"
	"strings"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Validate checks a loaded configuration. Every failure is a configuration
// error; the first one found is returned.
func Validate(cfg *backendtypes.ProxyConfig) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return types.NewConfigurationError(fmt.Sprintf("server: invalid port %d", cfg.Server.Port))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return types.NewConfigurationError("server: max_body_bytes must not be negative")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return types.NewConfigurationError("logging: " + err.Error())
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		return types.NewConfigurationError("logging: " + err.Error())
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return types.NewConfigurationError(fmt.Sprintf("metrics: path %q must start with /", cfg.Metrics.Path))
	}

	if cfg.Auth.Enabled && cfg.Auth.APIPassword == "" && cfg.Auth.APIKeyEnv == "" {
		return types.NewConfigurationError("auth: enabled without api_password or api_key_env")
	}

	return cfg.Bedrock.Validate()
}
