// Package handlers provides the HTTP handlers of the proxy: the native
// /invoke and /invoke_stream endpoints, the OpenAI-compatible chat
// completions and model listing, health checks and the catch-all 404,
// along with the standard JSON envelope helpers.
//
// Upstream responses are never wrapped. Only errors the proxy raises itself
// use the envelope.
package handlers
