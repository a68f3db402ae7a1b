package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gpukit/gpuprof/internal/settings"
	"github.com/gpukit/gpuprof/pkg/cmd/options"
	"github.com/gpukit/gpuprof/pkg/cmd/replay"
)

const logLevelInfo = "info"

func NewRootCmd(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:               settings.CmdName,
		Short:             settings.CmdName + " is a GPU kernel execution profiler",
		Long:              settings.CmdName + ` intercepts GPU command queues to observe kernel dispatches and attributes hardware PC samples back to decoded instructions, producing a per-instruction execution profile.`,
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(replay.NewCommand(opts))
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", logLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	if err := NewRootCmd(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
