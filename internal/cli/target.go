package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/infraload/internal/target"
)

func newTargetCmd() *cobra.Command {
	defaults := target.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a simulated load-balanced fleet to test against",
		Long: `Serve a local stand-in for a load balancer and its instances.

Every instance answers / with its hostname, burns CPU on /work?sec=N and
dies on /kill. Dead instances answer 502 until the health check removes
them and, with --replace, a new instance joins after --replace-delay.

  infraload target --addr :8080 --instances 3
  infraload run --target localhost:8080 --fault --step`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			level, _ := cmd.Flags().GetString("log-level")

			opts := defaults
			opts.Instances, _ = cmd.Flags().GetInt("instances")
			opts.HealthInterval, _ = cmd.Flags().GetDuration("health-interval")
			opts.Replace, _ = cmd.Flags().GetBool("replace")
			opts.ReplaceDelay, _ = cmd.Flags().GetDuration("replace-delay")
			if opts.Instances < 1 {
				return fmt.Errorf("--instances must be at least 1, got %d", opts.Instances)
			}
			if opts.HealthInterval <= 0 {
				return fmt.Errorf("--health-interval must be positive")
			}

			log, err := setupLogging(level, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts.Logger = log

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveTarget(ctx, lis, opts)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "Listen address")
	f.Int("instances", defaults.Instances, "Initial number of instances")
	f.Duration("health-interval", defaults.HealthInterval, "Health check interval")
	f.Bool("replace", defaults.Replace, "Replace instances removed by the health check")
	f.Duration("replace-delay", defaults.ReplaceDelay, "Time for a replacement to come up")
	f.String("log-level", "info", "Log level")
	return cmd
}

// serveTarget serves a fleet on lis until ctx ends.
func serveTarget(ctx context.Context, lis net.Listener, opts target.Options) error {
	log := opts.Logger.With().Str("component", "target").Logger()
	b := target.NewBalancer(opts)

	srv := &http.Server{
		Handler:           b,
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		b.Run(healthCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	logFleet(log, lis.Addr().String(), b)

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		<-errCh
	case err = <-errCh:
	}
	stopHealth()
	<-healthDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("target server failed: %w", err)
	}
	log.Info().Msg("target stopped")
	return nil
}

func logFleet(log zerolog.Logger, addr string, b *target.Balancer) {
	ids := make([]string, 0)
	for _, in := range b.Instances() {
		ids = append(ids, in.ID)
	}
	log.Info().Str("addr", addr).Strs("instances", ids).Msg("target listening")
}
