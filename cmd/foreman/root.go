package main

import (
	"fmt"
	"log/slog"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/foreman"
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	verbose  bool
	manifest string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Inspect system schedules derived from declared resource access",
		Long: `foreman reads a manifest of systems and the resources each one reads
before a write, writes, or reads after a write. It builds the dependency graph
the scheduler would build and reports the wavefronts, cycles and conflicts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.manifest == "" {
				return fmt.Errorf("a manifest is required (-f)")
			}
			level := bark.LevelWarn
			if opts.verbose {
				level = bark.LevelDebug
			}
			// logs go to stderr so they never mix with graph output
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
			foreman.Config.SetLogger(slog.New(handler))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log graph rebuilds")
	cmd.PersistentFlags().StringVarP(&opts.manifest, "file", "f", "", "path to the systems manifest (yaml)")

	cmd.AddCommand(newScheduleCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))

	return cmd
}
