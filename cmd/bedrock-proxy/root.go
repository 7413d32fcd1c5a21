package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "bedrock-proxy",
	Short: "SigV4-signing proxy for the Bedrock runtime API",
	Long: `bedrock-proxy accepts unauthenticated model invocation requests on a local
address, normalizes them to the upstream request schema, signs them with AWS
Signature Version 4 and relays the responses.

Endpoints:
  POST /invoke                 synchronous invocation, response relayed verbatim
  POST /invoke_stream          streaming invocation, relayed as Server-Sent Events
  POST /v1/chat/completions    OpenAI-compatible chat completions
  GET  /v1/models              OpenAI-compatible model listing`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (optional)")
}
