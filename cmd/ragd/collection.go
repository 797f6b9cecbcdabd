package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/services"
)

var (
	resetConfirm  bool
	checkEmbedder bool
)

func init() {
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)

	collectionCmd.AddCommand(collectionEnsureCmd)
	collectionCmd.AddCommand(collectionResetCmd)
	collectionCmd.AddCommand(collectionInfoCmd)
	collectionCmd.AddCommand(collectionStatsCmd)

	collectionResetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm deleting every chunk in the collection")
	collectionInfoCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the info as JSON")
	collectionStatsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the counts as JSON")
	healthCmd.Flags().BoolVar(&checkEmbedder, "embedder", false, "also embed a probe query")
}

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage the vector collection",
}

var collectionEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the collection and its payload indexes if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		reg, err := build(ctx, 0)
		if err != nil {
			return err
		}
		defer reg.Close()

		spec := reg.Collection()
		if err := reg.Index().EnsureCollection(ctx, spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Collection %s ready (dimension %d, %s)\n", spec.Name, spec.Dimension, spec.Distance)
		return nil
	},
}

var collectionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop and recreate the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetConfirm {
			return fmt.Errorf("refusing to reset without --yes")
		}
		ctx := cmd.Context()
		reg, err := build(ctx, 0)
		if err != nil {
			return err
		}
		defer reg.Close()

		spec := reg.Collection()
		if err := reg.Index().ResetCollection(ctx, spec); err != nil {
			return err
		}
		rt.logger.Warn(ctx, "collection reset", zap.String("collection", spec.Name))
		fmt.Fprintf(cmd.OutOrStdout(), "Collection %s reset\n", spec.Name)
		return nil
	},
}

var collectionInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show whether the collection exists, its dimension and size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		reg, err := build(ctx, 0)
		if err != nil {
			return err
		}
		defer reg.Close()

		info, err := reg.Index().CollectionInfo(ctx, reg.Collection().Name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, info)
		}
		if !info.Exists {
			fmt.Fprintf(out, "Collection %s does not exist\n", info.Name)
			return nil
		}
		fmt.Fprintf(out, "Name:      %s\n", info.Name)
		fmt.Fprintf(out, "Dimension: %d\n", info.Dimension)
		fmt.Fprintf(out, "Points:    %d\n", info.Points)
		if len(info.Indexed) > 0 {
			fmt.Fprintf(out, "Indexed:   %v\n", info.Indexed)
		}
		return nil
	},
}

var collectionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count chunks per source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		reg, err := build(ctx, 0)
		if err != nil {
			return err
		}
		defer reg.Close()

		counts, err := reg.Index().CountBySource(ctx, reg.Collection().Name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, counts)
		}

		sources := make([]string, 0, len(counts))
		total := 0
		for s, n := range counts {
			sources = append(sources, s)
			total += n
		}
		sort.Strings(sources)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tCHUNKS")
		for _, s := range sources {
			fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		}
		fmt.Fprintf(w, "TOTAL\t%d\n", total)
		return w.Flush()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the index (and optionally the embedder) is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		var needs services.Need
		if checkEmbedder {
			needs = services.NeedEmbedder
		}
		reg, err := build(ctx, needs)
		if err != nil {
			return err
		}
		defer reg.Close()

		out := cmd.OutOrStdout()
		cfg := reg.Config()
		if err := reg.Index().Health(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "index:      ok (%s)\n", cfg.VectorStore.Provider)

		if cfg.Embeddings.Provider == "fastembed" {
			if path := embeddings.ONNXLibraryPath(); path != "" {
				fmt.Fprintf(out, "onnx:       %s\n", path)
			} else {
				fmt.Fprintln(out, "onnx:       not found (set ONNX_PATH)")
			}
		}
		if checkEmbedder {
			vec, err := reg.Embedder().EmbedQuery(ctx, "health check")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "embedder:   ok (%s, %s, dimension %d)\n", cfg.Embeddings.Provider, cfg.Embeddings.Model, len(vec))
		}
		fmt.Fprintf(out, "generation: %s %s\n", cfg.Generation.Provider, cfg.Generation.Model)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// Skip config loading.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ragd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}
