// Package types holds the data model shared by the proxy packages: the
// upstream request schema, inference targets, the OpenAI-compatible chat
// shapes and the ProxyError taxonomy.
package types
