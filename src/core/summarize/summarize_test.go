package summarize_test

import (
	"context"
	"strings"
	"testing"

	"scientia/src/core/summarize"
)

type recordingLLM struct {
	systems []string
	prompts []string
	reply   string
}

func (r *recordingLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	r.systems = append(r.systems, system)
	r.prompts = append(r.prompts, prompt)
	if r.reply != "" {
		return r.reply, nil
	}
	return "- point", nil
}

func TestSummarizeSingleShot(t *testing.T) {
	llm := &recordingLLM{reply: "- a summary "}
	flow := summarize.NewFlow(llm)

	got, err := flow.Summarize(context.Background(), "A short technical note.")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "- a summary" {
		t.Errorf("Summarize = %q", got)
	}
	if len(llm.prompts) != 1 {
		t.Fatalf("made %d generation calls, want 1", len(llm.prompts))
	}
	if !strings.Contains(llm.prompts[0], "A short technical note.") {
		t.Errorf("prompt is missing the document text: %q", llm.prompts[0])
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	flow := summarize.NewFlow(&recordingLLM{})
	if _, err := flow.Summarize(context.Background(), "   \n"); err == nil {
		t.Fatal("Summarize on empty input must fail")
	}
}

func TestSummarizeSplitsLongInput(t *testing.T) {
	llm := &recordingLLM{}
	flow := summarize.NewFlow(llm, summarize.WithMaxCharsPerPart(200))

	text := strings.Repeat("The machine produced eighty units this shift. ", 30)
	if _, err := flow.Summarize(context.Background(), text); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	// Several part calls plus one combine call.
	if len(llm.prompts) < 3 {
		t.Fatalf("made %d generation calls, want part calls plus a combine pass", len(llm.prompts))
	}
	last := llm.systems[len(llm.systems)-1]
	if !strings.Contains(last, "Merge the partial summaries") {
		t.Errorf("final call is not the combine pass: %q", last)
	}
}

func TestReportBuildsSections(t *testing.T) {
	llm := &recordingLLM{reply: "- report"}
	flow := summarize.NewFlow(llm)

	sections := []summarize.Section{
		{Header: "SNAPSHOT erp 2026-08-30", Body: `{"orders": 12}`},
		{Header: "SNAPSHOT mes 2026-08-30", Body: strings.Repeat("x", 5000)},
	}
	got, err := flow.Report(context.Background(), sections)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got != "- report" {
		t.Errorf("Report = %q", got)
	}

	prompt := llm.prompts[0]
	if !strings.Contains(prompt, "=== SNAPSHOT erp 2026-08-30 ===") {
		t.Errorf("prompt is missing the erp section header: %q", prompt)
	}
	if strings.Count(prompt, "x") > 2000 {
		t.Error("oversized section body was not truncated")
	}
}

func TestReportNoSections(t *testing.T) {
	flow := summarize.NewFlow(&recordingLLM{})
	if _, err := flow.Report(context.Background(), nil); err == nil {
		t.Fatal("Report with no sections must fail")
	}
}
