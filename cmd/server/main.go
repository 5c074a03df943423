package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/panorama/internal/app"
	"github.com/dkeye/panorama/internal/config"
	"github.com/dkeye/panorama/internal/logging"
	"github.com/dkeye/panorama/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "panorama-server: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "panorama-server",
		Short:         "WebSocket echo listener",
		Long:          "Accepts WebSocket connections and answers every text message with the same text plus \"_ret\".",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}

	f := cmd.Flags()
	f.String("mode", "release", "release or debug")
	f.String("log-level", "info", "zerolog level")
	f.String("addr", "127.0.0.1:8080", "listen address host:port")
	f.String("ws-path", "/ws", "upgrade endpoint path")
	f.Duration("heartbeat-interval", 0, "time between heartbeat pings")
	f.Duration("read-timeout", 0, "max wait for an inbound frame")
	f.Duration("write-timeout", 0, "max time for one outbound write")
	f.Int("outbound-queue-capacity", 0, "outbound queue capacity per session")
	f.String("backpressure-policy", "", "block or fail-fast")
	f.Int("handshake-rate", 0, "max handshakes per client IP per window, 0 disables")
	f.String("tls-cert-file", "", "serve TLS with this certificate")
	f.String("tls-key-file", "", "serve TLS with this key")
	return cmd
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logging.Setup(cfg.Mode, cfg.LogLevel)

	l, err := app.NewListener(cfg, app.EchoFactory, metrics.NewCollector())
	if err != nil {
		return err
	}

	log.Info().Str("addr", cfg.Addr).Msg("panorama server started")
	if err := l.Run(cmd.Context(), cfg.Addr); err != nil {
		log.Error().Err(err).Msg("listener failed")
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
