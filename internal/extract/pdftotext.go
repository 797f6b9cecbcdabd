package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PdftotextExtractor shells out to poppler's pdftotext. It handles files
// the native parser cannot decode.
type PdftotextExtractor struct {
	runner CommandRunner
	binary string
}

// NewPdftotextExtractor creates the extractor. A nil runner uses ExecRunner.
func NewPdftotextExtractor(runner CommandRunner) *PdftotextExtractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PdftotextExtractor{runner: runner, binary: "pdftotext"}
}

// Extract implements Extractor. pdftotext separates pages with form feeds.
func (e *PdftotextExtractor) Extract(ctx context.Context, source string, data []byte) (*Document, error) {
	tmp, err := os.CreateTemp("", "ragd-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	out, err := e.runner.Run(ctx, e.binary, "-enc", "UTF-8", tmp.Name(), "-")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.binary, err)
	}

	raw := strings.Split(string(out), "\f")
	// Output ends with a form feed after the last page.
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}

	doc := &Document{Source: source, Pages: make([]Page, 0, len(raw))}
	for i, text := range raw {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: text})
	}
	if doc.IsEmpty() {
		return nil, ErrNoText
	}
	return doc, nil
}
