// Package cli implements the infraload command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/infraload/internal/output"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "infraload",
		Short:   "Load test a load-balanced web fleet and report what clients saw",
		Version: version,
		Long: `infraload drives HTTP load against a load balancer and measures the
client-perceived behaviour of the fleet behind it: which backends answer,
when new ones appear, how long outages last and whether each ramp step
stays within the latency SLA.

Configuration comes from the environment and an optional .env file
(ALB_URL, OBSERVE_PATH, USE_STEP_SHAPE, ...). Flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newTargetCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// ExecuteTarget runs the target command as a standalone program.
func ExecuteTarget() error {
	cmd := newTargetCmd()
	cmd.Use = "target-server"
	cmd.Version = version
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "infraload %s\n", version)
		},
	}
}

// setupLogging builds the process logger writing human-readable lines
// to w.
func setupLogging(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cw := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !output.UseColor(w),
	}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger(), nil
}
