package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/services"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	jsonOutput   bool
	upsertText   string
	upsertSource string
)

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(deleteSourceCmd)

	ingestCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")

	upsertCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	upsertCmd.Flags().StringVar(&upsertText, "text", "", "upsert this text instead of a chunks file")
	upsertCmd.Flags().StringVar(&upsertSource, "source", "", "source label for --text (required with --text)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest PATH...",
	Short: "Extract, chunk, embed and index documents",
	Long: `Ingest files and directories into the collection. Directories are walked
recursively; .gitignore and .ragignore patterns are honored. Documents that
cannot be read are reported and skipped.

Examples:
  ragd ingest ./docs
  ragd ingest guide.pdf notes.md --collection city_guides`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var upsertCmd = &cobra.Command{
	Use:   "upsert [CHUNKS.jsonl|-]",
	Short: "Embed and index prepared chunks or raw text",
	Long: `Upsert chunk records written by 'ragd chunk' (one JSON object per line),
or raw text with --text. Chunk IDs are deterministic, so re-running an upsert
overwrites instead of duplicating.

Examples:
  ragd chunk guide.pdf | ragd upsert -
  ragd upsert --text "La catedral abre a las 10." --source nota.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpsert,
}

var deleteSourceCmd = &cobra.Command{
	Use:   "delete-source SOURCE",
	Short: "Delete every chunk of a source from the collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteSource,
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *ingest.Report) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Collection: %s\n", r.Collection)
	fmt.Fprintf(w, "Chunks:     %d upserted of %d in %d batches (%s)\n",
		r.Upserted, r.Chunks, r.Batches, r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  batch %d [%d:%d] failed: %v\n", f.Batch, f.Start, f.End, f.Err)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := build(ctx, services.NeedEmbedder)
	if err != nil {
		return err
	}
	defer reg.Close()

	bulk, err := reg.Ingest().IngestPaths(ctx, args)
	if perr := reg.PushMetrics(ctx); perr != nil {
		rt.logger.Warn(ctx, "metrics push failed", zap.Error(perr))
	}
	if bulk == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if jerr := printJSON(out, bulk); jerr != nil {
			return jerr
		}
		return err
	}

	fmt.Fprintf(out, "Documents:  %d found, %d ingested\n", bulk.Documents, bulk.Ingested)
	for _, f := range bulk.Failed {
		fmt.Fprintf(out, "  skipped %s: %s\n", f.Path, f.Message)
	}
	printReport(out, bulk.Upsert)
	return err
}

func runUpsert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if upsertText == "" && len(args) == 0 {
		return fmt.Errorf("%w: a chunks file or --text is required", ragerr.ErrConfiguration)
	}
	if upsertText != "" && upsertSource == "" {
		return fmt.Errorf("%w: --source is required with --text", ragerr.ErrConfiguration)
	}

	reg, err := build(ctx, services.NeedEmbedder)
	if err != nil {
		return err
	}
	defer reg.Close()

	var report *ingest.Report
	switch {
	case upsertText != "":
		report, err = reg.Ingest().UpsertText(ctx, upsertSource, upsertText)
	case args[0] == "-":
		report, err = reg.Ingest().UpsertJSONL(ctx, cmd.InOrStdin())
	default:
		f, ferr := os.Open(args[0])
		if ferr != nil {
			return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, ferr)
		}
		report, err = reg.Ingest().UpsertJSONL(ctx, f)
		_ = f.Close()
	}
	if perr := reg.PushMetrics(ctx); perr != nil {
		rt.logger.Warn(ctx, "metrics push failed", zap.Error(perr))
	}
	if report == nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if jerr := printJSON(out, report); jerr != nil {
			return jerr
		}
		return err
	}
	printReport(out, report)

	var partial *ingest.PartialFailureError
	if errors.As(err, &partial) {
		fmt.Fprintf(out, "Re-run the upsert to retry the %d failed batches.\n", len(partial.Failures))
	}
	return err
}

func runDeleteSource(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := build(ctx, 0)
	if err != nil {
		return err
	}
	defer reg.Close()

	source := strings.TrimSpace(args[0])
	if source == "" {
		return fmt.Errorf("%w: source is required", ragerr.ErrConfiguration)
	}
	n, err := reg.Index().Delete(ctx, reg.Collection().Name, vectorstore.Filter{Source: source})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks of %s from %s\n", n, source, reg.Collection().Name)
	return nil
}
