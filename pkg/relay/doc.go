// Package relay moves upstream responses back to the client. Synchronous
// responses are forwarded as they are; streamed responses are decoded from
// the upstream event-stream framing and re-emitted as server-sent events,
// one event per chunk and in arrival order.
package relay
