package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

var (
	outputPath string
	flatText   bool

	chunkMaxChars int
	chunkOverlap  int
	chunkStrategy string
	chunkSource   string

	pagesPath string
)

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(enrichCmd)

	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write pages JSON to this file instead of stdout")
	extractCmd.Flags().BoolVar(&flatText, "text", false, "print the flattened text instead of pages JSON")

	chunkCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write chunks JSONL to this file instead of stdout")
	chunkCmd.Flags().IntVar(&chunkMaxChars, "max-chars", 0, "maximum chunk size in characters (default from config)")
	chunkCmd.Flags().IntVar(&chunkOverlap, "overlap", -1, "characters shared by consecutive chunks (default from config)")
	chunkCmd.Flags().StringVar(&chunkStrategy, "strategy", "", "window or sentence (default from config)")
	chunkCmd.Flags().StringVar(&chunkSource, "source", "", "source label (single file only; default is the file name)")

	enrichCmd.Flags().StringVar(&pagesPath, "pages", "", "pages JSON written by 'ragd extract' (required)")
	enrichCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write enriched JSONL to this file instead of stdout")
	_ = enrichCmd.MarkFlagRequired("pages")
}

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract per-page text from a PDF or text file",
	Long: `Extract text from a document, one entry per page.

Examples:
  # Pages as JSON
  ragd extract guide.pdf -o pages.json

  # Flattened text
  ragd extract guide.pdf --text`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk FILE...",
	Short: "Split documents into chunks and write them as JSON lines",
	Long: `Split documents into overlapping, size-bounded chunks with deterministic IDs.

Examples:
  ragd chunk guide.pdf -o chunks.jsonl
  ragd chunk notes.txt --max-chars 500 --overlap 50 --strategy sentence`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChunk,
}

var enrichCmd = &cobra.Command{
	Use:   "enrich CHUNKS.jsonl --pages pages.json",
	Short: "Assign page numbers to chunks that have none",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrich,
}

// openOutput returns stdout for "" or "-", else a created file.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := extract.NewService(nil).ExtractFile(ctx, args[0])
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(cmd, outputPath)
	if err != nil {
		return err
	}
	if flatText {
		text, _ := doc.Flatten()
		_, err = fmt.Fprintln(w, text)
	} else {
		err = extract.WriteJSON(w, doc)
	}
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	rt.logger.Info(ctx, "document extracted",
		zap.String("source", doc.Source),
		zap.Int("pages", len(doc.Pages)))
	return nil
}

func chunkOptions(cmd *cobra.Command) chunker.Options {
	opts := chunker.OptionsFrom(rt.cfg.Chunking)
	if cmd.Flags().Changed("max-chars") {
		opts.MaxChars = chunkMaxChars
		if opts.BreakTolerance >= opts.MaxChars {
			opts.BreakTolerance = 0
		}
	}
	if cmd.Flags().Changed("overlap") {
		opts.Overlap = chunkOverlap
	}
	if chunkStrategy != "" {
		opts.Strategy = chunkStrategy
	}
	return opts
}

func runChunk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if chunkSource != "" && len(args) > 1 {
		return fmt.Errorf("%w: --source requires a single file", ragerr.ErrConfiguration)
	}
	chk, err := chunker.New(chunkOptions(cmd))
	if err != nil {
		return err
	}

	ex := extract.NewService(nil)
	var all []chunker.Chunk
	for _, path := range args {
		doc, err := ex.ExtractFile(ctx, path)
		if err != nil {
			return err
		}
		if chunkSource != "" {
			doc.Source = chunkSource
		}
		if doc.IsEmpty() {
			return &ragerr.ExtractionError{Source: doc.Source, Err: extract.ErrNoText}
		}
		chunks, err := chk.ChunkDocument(doc)
		if err != nil {
			return err
		}
		rt.logger.Debug(ctx, "document chunked",
			zap.String("source", doc.Source),
			zap.Int("chunks", len(chunks)))
		all = append(all, chunks...)
	}

	w, closeFn, err := openOutput(cmd, outputPath)
	if err != nil {
		return err
	}
	err = chunker.WriteJSONL(w, all)
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	rt.logger.Info(ctx, "chunks written",
		zap.Int("documents", len(args)),
		zap.Int("chunks", len(all)))
	return nil
}

func readChunkFile(ctx context.Context, path string) ([]chunker.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}
	defer f.Close()
	chunks, err := chunker.DecodeJSONL(f, func(line int, stored, derived string) {
		rt.logger.Warn(ctx, "stale chunk id replaced",
			zap.String("path", path),
			zap.Int("line", line),
			zap.String("stored_id", stored),
			zap.String("id", derived))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ragerr.ErrConfiguration, path, err)
	}
	return chunks, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	chunks, err := readChunkFile(ctx, args[0])
	if err != nil {
		return err
	}

	pf, err := os.Open(pagesPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}
	doc, err := extract.ReadJSON(pf)
	_ = pf.Close()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ragerr.ErrConfiguration, pagesPath, err)
	}
	if len(doc.Pages) == 0 {
		return errors.New("pages file has no pages")
	}

	assigned := chunker.EnrichPages(chunks, doc.Pages)

	w, closeFn, err := openOutput(cmd, outputPath)
	if err != nil {
		return err
	}
	err = chunker.WriteJSONL(w, chunks)
	if cerr := closeFn(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	rt.logger.Info(ctx, "pages assigned",
		zap.Int("chunks", len(chunks)),
		zap.Int("assigned", assigned))
	return nil
}
