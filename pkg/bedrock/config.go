package bedrock

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// DefaultInferenceProfile is used when no model or inference profile is configured
const DefaultInferenceProfile = "apac.anthropic.claude-sonnet-4-20250514-v1:0"

// Config holds the process-wide upstream configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	// AWS Region for Bedrock API (e.g., "us-east-1", "ap-southeast-2")
	Region string `yaml:"region"`

	// AWS credentials for signing requests
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"` // Optional, for temporary credentials

	// Shared config profile used to resolve credentials when the keys above are empty
	Profile string `yaml:"profile"`

	// Model id or inference profile id/ARN that invocations are routed to
	InferenceProfile string `yaml:"inference_profile"`

	// Custom endpoint override (optional), either a bare host or scheme://host[:port].
	// If not set, uses: https://bedrock-runtime.{region}.amazonaws.com
	Endpoint string `yaml:"endpoint"`

	// Maps friendly model names to Bedrock model ids for the OpenAI-compatible API
	ModelMappings map[string]string `yaml:"model_mappings"`

	// Log canonical requests and strings-to-sign at debug level
	Debug bool `yaml:"debug"`
}

// Credentials is the key material used to sign a call
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Resolution is the result of resolving an invocation target against the config
type Resolution struct {
	Scheme      string
	Host        string
	Path        string // decoded path
	RawPath     string // path as sent on the wire
	Region      string
	Credentials Credentials
}

// URL returns the full upstream URL of the resolution
func (r Resolution) URL() *url.URL {
	return &url.URL{
		Scheme:  r.Scheme,
		Host:    r.Host,
		Path:    r.Path,
		RawPath: r.RawPath,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Region == "" {
		return types.NewConfigurationError("bedrock: region is required")
	}

	if c.AccessKeyID == "" {
		return types.NewConfigurationError("bedrock: access_key_id is required")
	}

	if c.SecretAccessKey == "" {
		return types.NewConfigurationError("bedrock: secret_access_key is required")
	}

	if c.InferenceProfile == "" {
		return types.NewConfigurationError("bedrock: inference_profile is required")
	}

	if _, _, err := c.endpoint(); err != nil {
		return err
	}

	return nil
}

// GetEndpoint returns the Bedrock endpoint host
func (c *Config) GetEndpoint() string {
	_, host, err := c.endpoint()
	if err != nil {
		return ""
	}
	return host
}

func (c *Config) endpoint() (scheme, host string, err error) {
	if c.Endpoint == "" {
		return "https", fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", c.Region), nil
	}

	if !strings.Contains(c.Endpoint, "://") {
		return "https", strings.TrimSuffix(c.Endpoint, "/"), nil
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" {
		return "", "", types.NewConfigurationError(fmt.Sprintf("bedrock: invalid endpoint %q", c.Endpoint))
	}
	return u.Scheme, u.Host, nil
}

// Resolve returns the upstream location and credentials for an invocation of
// the configured inference profile.
func (c *Config) Resolve(mode types.Mode) (Resolution, error) {
	return c.ResolveTarget(types.InferenceTarget{ModelID: c.InferenceProfile, Mode: mode})
}

// ResolveTarget returns the upstream location and credentials for target
func (c *Config) ResolveTarget(target types.InferenceTarget) (Resolution, error) {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return Resolution{}, types.NewConfigurationError("bedrock: credentials are not configured")
	}
	if target.ModelID == "" {
		return Resolution{}, types.NewConfigurationError("bedrock: no model or inference profile to invoke")
	}

	scheme, host, err := c.endpoint()
	if err != nil {
		return Resolution{}, err
	}

	// ARNs carry '/' which must stay inside a single path segment
	escaped := types.InferenceTarget{ModelID: url.PathEscape(target.ModelID), Mode: target.Mode}

	return Resolution{
		Scheme:  scheme,
		Host:    host,
		Path:    target.Path(),
		RawPath: escaped.Path(),
		Region:  c.Region,
		Credentials: Credentials{
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			SessionToken:    c.SessionToken,
		},
	}, nil
}

// HasCredentials reports whether both halves of the static key pair are set
func (c *Config) HasCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Clone creates a copy of the config
func (c *Config) Clone() *Config {
	clone := *c

	if c.ModelMappings != nil {
		clone.ModelMappings = make(map[string]string, len(c.ModelMappings))
		for k, v := range c.ModelMappings {
			clone.ModelMappings[k] = v
		}
	}

	return &clone
}
