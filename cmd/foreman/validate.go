package main

import (
	"fmt"
	"io"

	"github.com/TheBitDrifter/foreman"
	"github.com/spf13/cobra"
)

func newValidateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a manifest for cycles and wavefront conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runValidate(rootOpts *rootOptions, out io.Writer) error {
	m, err := loadManifest(rootOpts.manifest)
	if err != nil {
		return err
	}
	graph, err := m.registry().Graph()
	if err != nil {
		return err
	}
	if err := foreman.ValidateWavefronts(graph); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "ok: %d systems in %d wavefronts, %d edges\n",
		graph.Len(), graph.Depth(), len(graph.Edges()))
	return err
}
