package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"scientia/src/log"
)

const (
	DefaultMaxCharsPerPart = 20000
	maxCharsPerSection     = 2000
)

const (
	summarySystemPrompt = "You are an engineer. Summarize technical documents as concise bullet points. " +
		"Keep figures and identifiers exact."
	combineSystemPrompt = "You are an engineer. Merge the partial summaries below into one coherent " +
		"bullet-point summary without repeating points."
	reportSystemPrompt = "You are a production engineer. Based on the snapshot data below, write a short " +
		"bullet-point report. Focus on order counts and kinds, production states and potential problems " +
		"or alerts. Do not restate the data verbatim, summarize it."
)

// LLM produces text from a system instruction and a prompt.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Flow turns document text into a summary, splitting inputs that exceed the
// per-call budget and reducing the partial summaries afterwards.
type Flow struct {
	llm             LLM
	maxCharsPerPart int
}

type Option func(*Flow)

func WithMaxCharsPerPart(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.maxCharsPerPart = n
		}
	}
}

func NewFlow(llm LLM, opts ...Option) *Flow {
	f := &Flow{
		llm:             llm,
		maxCharsPerPart: DefaultMaxCharsPerPart,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Summarize produces a bullet-point summary of text.
func (f *Flow) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("nothing to summarize")
	}

	if len(text) <= f.maxCharsPerPart {
		return f.generate(ctx, summarySystemPrompt, "Document:\n"+text)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(f.maxCharsPerPart),
		textsplitter.WithChunkOverlap(f.maxCharsPerPart/10),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return "", fmt.Errorf("failed to split text: %w", err)
	}

	partials := make([]string, 0, len(parts))
	for i, part := range parts {
		summary, err := f.generate(ctx, summarySystemPrompt, fmt.Sprintf("Document part %d of %d:\n%s", i+1, len(parts), part))
		if err != nil {
			return "", fmt.Errorf("failed to summarize part %d: %w", i+1, err)
		}
		partials = append(partials, summary)
	}

	if len(partials) == 1 {
		return partials[0], nil
	}
	return f.generate(ctx, combineSystemPrompt, strings.Join(partials, "\n\n"))
}

// Section is one labeled block of report input, typically a snapshot file.
type Section struct {
	Header string
	Body   string
}

// Report builds a sectioned prompt from the snapshots and generates a
// condensed status report. Section bodies are truncated so a single huge
// file cannot flood the model.
func (f *Flow) Report(ctx context.Context, sections []Section) (string, error) {
	if len(sections) == 0 {
		return "", fmt.Errorf("no sections to report on")
	}

	var input strings.Builder
	for _, section := range sections {
		body := section.Body
		if len(body) > maxCharsPerSection {
			body = body[:maxCharsPerSection]
		}
		input.WriteString(fmt.Sprintf("\n=== %s ===\n%s\n", section.Header, body))
	}

	text := strings.TrimSpace(input.String())
	if text == "" {
		return "", fmt.Errorf("no content in report sections")
	}

	return f.generate(ctx, reportSystemPrompt, text)
}

func (f *Flow) generate(ctx context.Context, system, prompt string) (string, error) {
	log.Debug("summary generation", "prompt_length", len(prompt))
	out, err := f.llm.Generate(ctx, system, prompt)
	if err != nil {
		log.Error(err, "summary generation failed")
		return "", err
	}
	return strings.TrimSpace(out), nil
}
