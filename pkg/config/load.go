// Package config loads the proxy configuration from a .env file, an optional
// YAML file and the environment, in that order of increasing precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Environment variables that override file values
const (
	EnvRegion           = "AWS_REGION"
	EnvDefaultRegion    = "AWS_DEFAULT_REGION"
	EnvAccessKeyID      = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken     = "AWS_SESSION_TOKEN"
	EnvProfile          = "AWS_PROFILE"
	EnvInferenceProfile = "INFERENCE_PROFILE"
	EnvEndpoint         = "BEDROCK_ENDPOINT"
	EnvLogLevel         = "BEDROCK_PROXY_LOG_LEVEL"
)

// DefaultDotEnvPath is read from the working directory when present
const DefaultDotEnvPath = ".env"

// CredentialResolver looks up credentials for a shared config profile. The
// returned region is the profile's region, if it names one.
type CredentialResolver func(ctx context.Context, profile, region string) (aws.Credentials, string, error)

// Loader builds a ProxyConfig. The zero value is not usable; use NewLoader.
type Loader struct {
	// DotEnvPath is loaded into the process environment first. Empty skips it.
	DotEnvPath string
	// Getenv reads environment overrides
	Getenv func(string) string
	// ResolveProfile resolves profile credentials when no static keys are set
	ResolveProfile CredentialResolver
}

// NewLoader returns a loader reading the process environment and the AWS
// shared config files
func NewLoader() *Loader {
	return &Loader{
		DotEnvPath:     DefaultDotEnvPath,
		Getenv:         os.Getenv,
		ResolveProfile: SharedProfileCredentials,
	}
}

// Load is NewLoader().Load
func Load(ctx context.Context, path string) (*backendtypes.ProxyConfig, error) {
	return NewLoader().Load(ctx, path)
}

// Load reads the configuration. An empty path means no YAML file; a missing
// .env file is not an error. The result has defaults applied, credentials
// resolved and has passed Validate.
//
// The loading sequence is:
//  1. Load .env into the environment (existing variables win)
//  2. Decode the YAML file on top of the defaults
//  3. Apply environment variable overrides
//  4. Resolve profile credentials if no static keys are set
//  5. Validate the final configuration
func (l *Loader) Load(ctx context.Context, path string) (*backendtypes.ProxyConfig, error) {
	if l.DotEnvPath != "" {
		if err := godotenv.Load(l.DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewConfigurationError(fmt.Sprintf("failed to load %s: %v", l.DotEnvPath, err))
		}
	}

	cfg := Defaults()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(&cfg)

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	applyEnvOverrides(&cfg, getenv)

	if err := l.resolveCredentials(ctx, &cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *backendtypes.ProxyConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NewConfigurationError(fmt.Sprintf("failed to read configuration file %q: %v", path, err))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return types.NewConfigurationError(fmt.Sprintf("failed to parse configuration file %q: %v", path, err))
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *backendtypes.ProxyConfig, getenv func(string) string) {
	if val := getenv(EnvRegion); val != "" {
		cfg.Bedrock.Region = val
	} else if val := getenv(EnvDefaultRegion); val != "" {
		cfg.Bedrock.Region = val
	}
	if val := getenv(EnvAccessKeyID); val != "" {
		cfg.Bedrock.AccessKeyID = val
	}
	if val := getenv(EnvSecretAccessKey); val != "" {
		cfg.Bedrock.SecretAccessKey = val
	}
	if val := getenv(EnvSessionToken); val != "" {
		cfg.Bedrock.SessionToken = val
	}
	if val := getenv(EnvProfile); val != "" {
		cfg.Bedrock.Profile = val
	}
	if val := getenv(EnvInferenceProfile); val != "" {
		cfg.Bedrock.InferenceProfile = val
	}
	if val := getenv(EnvEndpoint); val != "" {
		cfg.Bedrock.Endpoint = val
	}
	if val := getenv(EnvLogLevel); val != "" {
		cfg.Logging.Level = val
	}
}

// resolveCredentials freezes profile credentials into the config when no
// static key pair is configured
func (l *Loader) resolveCredentials(ctx context.Context, cfg *backendtypes.ProxyConfig) error {
	if cfg.Bedrock.HasCredentials() || cfg.Bedrock.Profile == "" || l.ResolveProfile == nil {
		return nil
	}

	creds, region, err := l.ResolveProfile(ctx, cfg.Bedrock.Profile, cfg.Bedrock.Region)
	if err != nil {
		return types.NewConfigurationError(fmt.Sprintf("bedrock: failed to resolve credentials for profile %q: %v", cfg.Bedrock.Profile, err))
	}

	cfg.Bedrock.AccessKeyID = creds.AccessKeyID
	cfg.Bedrock.SecretAccessKey = creds.SecretAccessKey
	cfg.Bedrock.SessionToken = creds.SessionToken
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = region
	}
	return nil
}

// SharedProfileCredentials resolves a profile through the AWS shared config
// and credentials files, including SSO and assume-role profiles
func SharedProfileCredentials(ctx context.Context, profile, region string) (aws.Credentials, string, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithSharedConfigProfile(profile),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Credentials{}, "", err
	}
	if awsCfg.Credentials == nil {
		return aws.Credentials{}, "", errors.New("no credentials provider for profile")
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, "", err
	}
	return creds, awsCfg.Region, nil
}
