package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/TheBitDrifter/foreman"
	"github.com/spf13/cobra"
)

type scheduleOptions struct {
	dot     bool
	mermaid bool
	json    bool
}

// scheduleOutput is the --json shape.
type scheduleOutput struct {
	Wavefronts [][]string   `json:"wavefronts"`
	Edges      []edgeOutput `json:"edges"`
}

type edgeOutput struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Resource string `json:"resource"`
	Kind     string `json:"kind"`
}

func newScheduleCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &scheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the wavefronts derived from a manifest",
		Long: `Print the execution schedule derived from a manifest. Systems on one line
share a wavefront and may run concurrently; every wavefront runs after the
ones above it. A dependency cycle is reported and exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dot, "dot", false, "print the graph as Graphviz DOT")
	cmd.Flags().BoolVar(&opts.mermaid, "mermaid", false, "print the graph as a Mermaid diagram")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print wavefronts and edges as JSON")
	cmd.MarkFlagsMutuallyExclusive("dot", "mermaid", "json")

	return cmd
}

func runSchedule(rootOpts *rootOptions, opts *scheduleOptions, out io.Writer) error {
	m, err := loadManifest(rootOpts.manifest)
	if err != nil {
		return err
	}
	graph, err := m.registry().Graph()
	if err != nil {
		return err
	}

	switch {
	case opts.dot:
		_, err = io.WriteString(out, graph.DOT())
	case opts.mermaid:
		_, err = io.WriteString(out, graph.Mermaid())
	case opts.json:
		err = writeScheduleJSON(out, graph)
	default:
		err = writeWavefronts(out, graph)
	}
	return err
}

func writeWavefronts(out io.Writer, graph *foreman.SystemGraph) error {
	for i, wave := range graph.Wavefronts() {
		names := make([]string, len(wave))
		for j, info := range wave {
			names[j] = info.Name()
		}
		if _, err := fmt.Fprintf(out, "wavefront %d: %s\n", i, strings.Join(names, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func writeScheduleJSON(out io.Writer, graph *foreman.SystemGraph) error {
	result := scheduleOutput{
		Wavefronts: make([][]string, 0, graph.Depth()),
		Edges:      make([]edgeOutput, 0),
	}
	for _, wave := range graph.Wavefronts() {
		names := make([]string, len(wave))
		for j, info := range wave {
			names[j] = info.Name()
		}
		result.Wavefronts = append(result.Wavefronts, names)
	}
	for _, e := range graph.Edges() {
		result.Edges = append(result.Edges, edgeOutput{
			From:     e.From.Name(),
			To:       e.To.Name(),
			Resource: e.Resource.String(),
			Kind:     e.Kind.String(),
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
