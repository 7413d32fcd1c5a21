package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattmillen888/bedrock-proxy/pkg/backend"
	"github.com/mattmillen888/bedrock-proxy/pkg/backendtypes"
	"github.com/mattmillen888/bedrock-proxy/pkg/config"
	"github.com/mattmillen888/bedrock-proxy/pkg/logging"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the proxy server.

Configuration is read from .env in the working directory, the optional
--config file and the environment (AWS_REGION, AWS_ACCESS_KEY_ID,
AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN, AWS_PROFILE, INFERENCE_PROFILE,
BEDROCK_ENDPOINT, BEDROCK_PROXY_LOG_LEVEL), later sources winning.

Examples:
  # Start on 127.0.0.1:3000
  bedrock-proxy serve

  # Override listen address
  bedrock-proxy serve --listen 0.0.0.0:8080

  # Validate config without starting server
  bedrock-proxy serve --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address (host:port)")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config and credentials without starting server")
}

func runServe(ctx context.Context, out, logOut io.Writer) error {
	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg); err != nil {
		return err
	}
	cfg.Server.Version = Version

	logger, err := logging.New(cfg.Logging, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	server, err := backend.NewServer(cfg, logger, nil)
	if err != nil {
		return err
	}

	if serveFlags.dryRun {
		printSummary(out, cfg)
		return nil
	}

	return server.ListenAndServeWithGracefulShutdown(ctx)
}

// applyServeFlags layers command line overrides on the loaded config
func applyServeFlags(cfg *backendtypes.ProxyConfig) error {
	if serveFlags.listenAddress != "" {
		host, portStr, err := net.SplitHostPort(serveFlags.listenAddress)
		if err != nil {
			return fmt.Errorf("invalid --listen %q: %w", serveFlags.listenAddress, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q", portStr)
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	return config.Validate(cfg)
}

func printSummary(out io.Writer, cfg *backendtypes.ProxyConfig) {
	fmt.Fprintln(out, "Configuration valid")
	fmt.Fprintf(out, "  listen:            %s\n", cfg.Server.Addr())
	fmt.Fprintf(out, "  region:            %s\n", cfg.Bedrock.Region)
	fmt.Fprintf(out, "  endpoint:          %s\n", cfg.Bedrock.GetEndpoint())
	fmt.Fprintf(out, "  inference profile: %s\n", cfg.Bedrock.InferenceProfile)
	fmt.Fprintf(out, "  session token:     %t\n", cfg.Bedrock.SessionToken != "")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  metrics:           %s\n", cfg.Metrics.Path)
	}
}
