// Package backend provides the HTTP server of the Bedrock proxy.
//
// The server wires the upstream client, model mapper and metrics collector
// into the handlers and wraps them in the middleware chain:
//
//	Recovery -> Logging -> RequestID -> CORS -> Auth -> route metrics -> handler
//
// # Architecture
//
//   - handlers: /invoke, /invoke_stream, /v1/chat/completions, /v1/models,
//     /health, /status, /version and the catch-all 404
//   - middleware: recovery, structured logging, request IDs, CORS, auth, metrics
//
// Upstream calls go through a dedicated transport with a response header
// timeout and no overall client timeout, so long streams are never cut off by
// the proxy itself.
//
// # Example
//
//	cfg, err := config.Load(ctx, "proxy.yaml")
//	if err != nil {
//	    return err
//	}
//	server, err := backend.NewServer(cfg, logger, nil)
//	if err != nil {
//	    return err
//	}
//	return server.ListenAndServeWithGracefulShutdown(ctx)
package backend
