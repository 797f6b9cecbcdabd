package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/answer"
	"github.com/fyrsmithlabs/ragd/internal/console"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/services"
)

var (
	topK       int
	filterText string
	debugMode  bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(consoleCmd)

	for _, c := range []*cobra.Command{searchCmd, askCmd, consoleCmd} {
		c.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to return (default from config)")
	}
	for _, c := range []*cobra.Command{searchCmd, askCmd} {
		c.Flags().StringVar(&filterText, "filter", "", "only use chunks containing this phrase")
		c.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	}
	askCmd.Flags().BoolVar(&debugMode, "debug", false, "include backend scores, selection details and the prompt")
}

var searchCmd = &cobra.Command{
	Use:   "search QUESTION",
	Short: "Show the chunks most relevant to a question",
	Long: `Embed the question, retrieve candidates from the index and re-rank them.
No answer is generated.

Examples:
  ragd search "¿Cuándo abre la catedral?" -k 3
  ragd search "opening hours" --filter "cathedral" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the most relevant chunks and generate an answer grounded in them.
When nothing relevant is indexed, ragd says so instead of guessing.

Examples:
  ragd ask "¿Cuándo abre la catedral?"
  ragd ask "What does the museum cost?" --debug`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

func question(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := build(ctx, services.NeedEmbedder)
	if err != nil {
		return err
	}
	defer reg.Close()

	res, err := reg.Retrieval().Retrieve(ctx, retrieval.Request{
		Question:   question(args),
		TopK:       topK,
		FilterText: filterText,
	})
	if err != nil {
		return err
	}

	hits := make([]answer.Source, len(res.Chunks))
	for i, sc := range res.Chunks {
		hits[i] = answer.Source{
			ID:           sc.Chunk.ID,
			Source:       sc.Chunk.Source,
			Page:         sc.Chunk.Page,
			ChunkIndex:   sc.Chunk.ChunkIndex,
			Score:        sc.Score,
			BackendScore: sc.BackendScore,
			Text:         sc.Chunk.Text,
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching chunks.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintln(out, console.FormatSource(i+1, h))
		fmt.Fprintf(out, "    %s\n\n", strings.ReplaceAll(strings.TrimSpace(h.Text), "\n", "\n    "))
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := build(ctx, services.NeedGenerator)
	if err != nil {
		return err
	}
	defer reg.Close()

	ans, err := reg.Answer().Ask(ctx, answer.Query{
		Question:   question(args),
		TopK:       topK,
		FilterText: filterText,
		Debug:      debugMode,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, ans)
	}
	fmt.Fprint(out, console.FormatAnswer(ans))
	if debugMode && ans.Debug != nil {
		fmt.Fprintf(out, "\n--- prompt ---\n%s\n", ans.Debug.Prompt)
	}
	return nil
}

func runConsole(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	reg, err := build(ctx, services.NeedGenerator)
	if err != nil {
		return err
	}
	defer reg.Close()

	return console.Run(ctx, reg.Answer(), reg.Collection().Name, topK)
}
