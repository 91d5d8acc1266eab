package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

func TestChooseOption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		options  []string
		expect   string
	}{
		{
			name:     "exact option match",
			response: "Yes",
			options:  []string{"Yes", "No"},
			expect:   "Yes",
		},
		{
			name:     "case insensitive match returns offered spelling",
			response: "yes",
			options:  []string{"Yes", "No"},
			expect:   "Yes",
		},
		{
			name:     "off-list response is discarded, never coerced",
			response: "Definitely yes",
			options:  []string{"Yes", "No"},
			expect:   "",
		},
		{
			name:     "unknown sentinel",
			response: "unknown",
			options:  []string{"Yes", "No"},
			expect:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubGenerator{response: tt.response}
			assistant := NewAssistant(stub, zap.NewNop())

			got, err := assistant.ChooseOption(context.Background(), "Are you authorized?", tt.options, "resume text")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expect {
				t.Fatalf("ChooseOption = %q, want %q", got, tt.expect)
			}
			if !strings.Contains(stub.lastPrompt, "Are you authorized?") {
				t.Fatal("prompt missing the question")
			}
			if !strings.Contains(stub.lastPrompt, "resume text") {
				t.Fatal("prompt missing the knowledge document")
			}
		})
	}
}

func TestChooseOptionCapsOptionList(t *testing.T) {
	t.Parallel()

	options := make([]string, 30)
	for i := range options {
		options[i] = strings.Repeat("x", i+1)
	}

	stub := &stubGenerator{response: options[25]}
	assistant := NewAssistant(stub, zap.NewNop())

	got, err := assistant.ChooseOption(context.Background(), "q", options, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Option 26 was never offered to the backend, so it cannot match.
	if got != "" {
		t.Fatalf("expected no match beyond the cap, got %q", got)
	}
	if strings.Contains(stub.lastPrompt, options[20]) {
		t.Fatal("prompt contains options past the cap")
	}
}

func TestChooseOptionBackendFailure(t *testing.T) {
	t.Parallel()

	assistant := NewAssistant(&stubGenerator{err: errors.New("boom")}, zap.NewNop())
	if _, err := assistant.ChooseOption(context.Background(), "q", []string{"Yes"}, ""); err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestFillText(t *testing.T) {
	t.Parallel()

	stub := &stubGenerator{response: "  5  "}
	assistant := NewAssistant(stub, zap.NewNop())

	got, err := assistant.FillText(context.Background(), "Years of Go experience?", "resume", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5" {
		t.Fatalf("FillText = %q, want %q", got, "5")
	}

	stub.response = strings.Repeat("a", 500)
	got, err = assistant.FillText(context.Background(), "Describe yourself", "resume", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(got)) > 50 {
		t.Fatalf("char budget not enforced, got %d runes", len([]rune(got)))
	}

	stub.response = "unknown"
	got, err = assistant.FillText(context.Background(), "q", "resume", 50)
	if err != nil || got != "" {
		t.Fatalf("unknown should yield empty, got %q, %v", got, err)
	}
}
