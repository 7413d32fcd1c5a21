// bedrock-proxy is a local HTTP proxy that signs calls to the Bedrock runtime
// API with AWS SigV4 and relays the responses, including streams, to clients
// that cannot sign requests themselves.
//
// Usage:
//
//	# Start with credentials from the environment or .env
//	bedrock-proxy serve
//
//	# Start with a configuration file and a different address
//	bedrock-proxy serve --config proxy.yaml --listen 0.0.0.0:8080
//
//	# Check configuration and credentials without listening
//	bedrock-proxy serve --dry-run
//
//	# Show version information
//	bedrock-proxy version
package main

func main() {
	Execute()
}
