package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casetrail/casetrail/internal/coverage"
	"github.com/casetrail/casetrail/internal/export"
	"github.com/casetrail/casetrail/internal/graph"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseEntityRef splits a "type:value" entity reference.
func parseEntityRef(ref string) (string, string, error) {
	etype, value, ok := strings.Cut(ref, ":")
	if !ok || etype == "" || value == "" {
		return "", "", fmt.Errorf("bad entity %q, want type:value", ref)
	}
	return etype, value, nil
}

var exportFlags struct {
	format string
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export <case-id>",
	Short: "Write the merged case timeline ordered by event time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID := args[0]
		store, err := openStore(caseID, false)
		if err != nil {
			return err
		}
		defer store.Close()

		out := exportFlags.out
		if out == "" {
			out = filepath.Join(caseFS().ExportsDir(caseID), "timeline."+exportFlags.format)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()

		x := &export.Exporter{Store: store}
		var n int
		switch exportFlags.format {
		case "csv":
			n, err = x.WriteCSV(cmd.Context(), caseID, f)
		case "jsonl":
			n, err = x.WriteJSONL(cmd.Context(), caseID, f)
		default:
			return fmt.Errorf("unsupported format %q", exportFlags.format)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d events to %s\n", n, out)
		return nil
	},
}

var graphFlags struct {
	maxNodes  int
	minWeight int64
}

var graphCmd = &cobra.Command{
	Use:   "graph <case-id> <type:value>",
	Short: "Build the co-occurrence graph around an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		etype, value, err := parseEntityRef(args[1])
		if err != nil {
			return err
		}
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		b := &graph.Builder{Store: store}
		g, err := b.Build(cmd.Context(), args[0], etype, value, graph.Params{
			MaxNodes:      graphFlags.maxNodes,
			MinEdgeWeight: graphFlags.minWeight,
		})
		if err != nil {
			return err
		}
		return printJSON(g)
	},
}

var gapsFlags struct {
	bucketMinutes int
	minBuckets    int
	source        string
}

var gapsCmd = &cobra.Command{
	Use:   "gaps <case-id>",
	Short: "Find silent stretches in the case timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		a := &coverage.Analyzer{Store: store}
		gaps, err := a.FindGaps(cmd.Context(), args[0], coverage.Params{
			BucketMinutes: gapsFlags.bucketMinutes,
			MinGapBuckets: gapsFlags.minBuckets,
			Source:        gapsFlags.source,
		})
		if err != nil {
			return err
		}
		return printJSON(gaps)
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage <case-id>",
	Short: "Summarize each source system's observed window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		a := &coverage.Analyzer{Store: store}
		cov, err := a.Sources(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cov)
	},
}

var entitiesType string

var entitiesCmd = &cobra.Command{
	Use:   "entities <case-id>",
	Short: "List entities observed on the case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		ents, err := store.Entities(cmd.Context(), args[0], entitiesType)
		if err != nil {
			return err
		}
		return printJSON(ents)
	},
}

var annotateFlags struct {
	notes string
	tags  string
}

var annotateCmd = &cobra.Command{
	Use:   "annotate <case-id> <type:value>",
	Short: "Set analyst notes and tags on an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		etype, value, err := parseEntityRef(args[1])
		if err != nil {
			return err
		}
		store, err := openStore(args[0], false)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.UpdateEntityNotes(cmd.Context(), args[0], etype, value,
			annotateFlags.notes, annotateFlags.tags); err != nil {
			return err
		}
		fmt.Printf("Annotated %s:%s\n", etype, value)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFlags.format, "format", "csv", "Output format: csv or jsonl")
	exportCmd.Flags().StringVar(&exportFlags.out, "out", "", "Output path (default exports/timeline.<format>)")
	rootCmd.AddCommand(exportCmd)

	graphCmd.Flags().IntVar(&graphFlags.maxNodes, "max-nodes", graph.DefaultMaxNodes, "Node cap, seed always kept")
	graphCmd.Flags().Int64Var(&graphFlags.minWeight, "min-weight", 1, "Drop edges with fewer shared events")
	rootCmd.AddCommand(graphCmd)

	gapsCmd.Flags().IntVar(&gapsFlags.bucketMinutes, "bucket-minutes", 60, "Detection bucket size")
	gapsCmd.Flags().IntVar(&gapsFlags.minBuckets, "min-buckets", 2, "Shortest reported gap, in buckets")
	gapsCmd.Flags().StringVar(&gapsFlags.source, "source", "", "Restrict to one source system")
	rootCmd.AddCommand(gapsCmd)

	rootCmd.AddCommand(coverageCmd)

	entitiesCmd.Flags().StringVar(&entitiesType, "type", "", "Restrict to one entity type")
	rootCmd.AddCommand(entitiesCmd)

	annotateCmd.Flags().StringVar(&annotateFlags.notes, "notes", "", "Analyst notes")
	annotateCmd.Flags().StringVar(&annotateFlags.tags, "tags", "", "Comma-separated tags")
	rootCmd.AddCommand(annotateCmd)
}
