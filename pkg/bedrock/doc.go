// Package bedrock talks to the AWS Bedrock runtime API on behalf of the proxy.
//
// # Overview
//
// Every outbound invocation goes through three steps:
//
//   - Resolve the upstream location for a model id or inference profile
//   - Sign the exact request bytes with AWS Signature V4 for the "bedrock" service
//   - Send the request and hand back the raw upstream response
//
// # Basic Usage
//
//	cfg := &bedrock.Config{
//	    Region:           "ap-southeast-2",
//	    AccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
//	    SecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
//	    InferenceProfile: bedrock.DefaultInferenceProfile,
//	}
//
//	client, err := bedrock.NewClient(cfg, nil, slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	target := types.InferenceTarget{ModelID: cfg.InferenceProfile, Mode: types.ModeSync}
//	resp, err := client.Invoke(ctx, target, body)
//
// # Signing
//
// A fresh SigningContext is built for each call so the X-Amz-Date header and
// the credential scope always reflect the moment of dispatch. Signing covers
// Host, X-Amz-Date, X-Amz-Security-Token (for temporary credentials) and every
// other header on the request except Authorization, User-Agent,
// X-Amzn-Trace-Id, Expect and Transfer-Encoding.
//
// Model ids that contain '/' (inference profile ARNs) are escaped into a single
// path segment, and the canonical URI is encoded a second time as the runtime
// API expects.
//
// # Model Mapping
//
// ModelMapper turns the model names sent by OpenAI-style clients into Bedrock
// ids. Unknown names fall back to the configured inference profile.
package bedrock
