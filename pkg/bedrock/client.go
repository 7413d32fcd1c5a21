package bedrock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Content types negotiated with the runtime API
const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "application/vnd.amazon.eventstream"

	bedrockAcceptHeader = "X-Amzn-Bedrock-Accept"
)

// Doer sends a single HTTP request
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends signed invocations to the Bedrock runtime API.
// It is safe for concurrent use; the config is read-only after construction.
type Client struct {
	config     *Config
	signer     *Signer
	httpClient Doer
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a client for cfg. A nil httpClient uses http.DefaultClient.
func NewClient(cfg *Config, httpClient Doer, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("bedrock: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     cfg.Clone(),
		signer:     NewSigner(logger, cfg.Debug),
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Config returns a copy of the client's configuration
func (c *Client) Config() *Config {
	return c.config.Clone()
}

// Invoke posts body to the invocation endpoint for target and returns the raw
// upstream response, whatever its status. The caller must close the body.
// The request is signed immediately before dispatch and is never retried.
func (c *Client) Invoke(ctx context.Context, target types.InferenceTarget, body []byte) (*http.Response, error) {
	res, err := c.config.ResolveTarget(target)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, res.URL().String(), bytes.NewReader(body))
	if err != nil {
		return nil, types.NewSigningError(err)
	}
	req.Header.Set("Content-Type", ContentTypeJSON)
	if target.Mode == types.ModeStream {
		req.Header.Set("Accept", ContentTypeEventStream)
		req.Header.Set(bedrockAcceptHeader, ContentTypeJSON)
	} else {
		req.Header.Set("Accept", ContentTypeJSON)
	}

	sc := NewSigningContext(res.Credentials, res.Region, c.now())
	if err := c.signer.SignRequest(req, body, sc); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "dispatching upstream request",
		"mode", string(target.Mode),
		"model", target.ModelID,
		"host", res.Host,
		"bytes", len(body),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &types.ProxyError{
			Kind:    types.KindUpstream,
			Message: "upstream request failed",
			Err:     err,
		}
	}
	return resp, nil
}
