package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/panorama/internal/app"
	"github.com/dkeye/panorama/internal/config"
	"github.com/dkeye/panorama/internal/core"
	"github.com/dkeye/panorama/internal/logging"
	"github.com/dkeye/panorama/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "panorama-client: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "panorama-client",
		Short:         "Interactive WebSocket client",
		Long:          "Connects to a ws:// or wss:// target, sends stdin lines as text frames and prints what comes back.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runClient,
	}

	f := cmd.Flags()
	f.String("mode", "release", "release or debug")
	f.String("log-level", "info", "zerolog level")
	f.String("target", "ws://127.0.0.1:8080/ws", "ws:// or wss:// url")
	f.String("initial-message", "", "text frame sent right after the handshake")
	f.Duration("heartbeat-interval", 0, "time between heartbeat pings")
	f.Duration("read-timeout", 0, "max wait for an inbound frame")
	f.Duration("write-timeout", 0, "max time for one outbound write")
	f.Int("outbound-queue-capacity", 0, "outbound queue capacity")
	f.String("backpressure-policy", "", "block or fail-fast")
	f.String("tls-ca-file", "", "PEM bundle trusted for wss://")
	f.Bool("tls-insecure-skip-verify", false, "skip certificate verification")
	return cmd
}

func runClient(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logging.Setup(cfg.Mode, cfg.LogLevel)

	out := cmd.OutOrStdout()
	printer := session.HandlerFunc(func(_ *session.Session, f core.Frame) {
		if f.Kind() == core.FrameText {
			fmt.Fprintln(out, f.Text())
			return
		}
		fmt.Fprintf(out, "<%s>\n", f)
	})

	ctx := cmd.Context()
	sess, err := app.Connect(ctx, cfg, printer)
	if err != nil {
		return err
	}

	go func() {
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			if err := sess.Send(ctx, core.Text(sc.Text())); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("send")
				return
			}
		}
		sess.Close()
	}()

	var outcome core.Outcome
	select {
	case <-sess.Done():
		outcome = sess.Outcome()
	case <-ctx.Done():
		outcome = sess.Close()
	}

	log.Info().Stringer("outcome", outcome).Msg("connection closed")
	if !outcome.Normal() {
		return fmt.Errorf("session ended: %s", outcome)
	}
	return nil
}
