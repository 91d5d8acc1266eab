package gemini

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/logger"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// maxOptions bounds the option list sent to the backend.
const maxOptions = 20

const unknownAnswer = "unknown"

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Assistant answers form questions with Gemini. Responses for option
// questions are discarded unless they match an offered option exactly or
// case-insensitively; the backend is never trusted to stay on the list.
type Assistant struct {
	generator contentGenerator
	logger    *zap.Logger
}

func NewAssistant(generator contentGenerator, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{generator: generator, logger: log}
}

func (a *Assistant) ChooseOption(ctx context.Context, questionText string, options []string, knowledge string) (string, error) {
	if len(options) > maxOptions {
		options = options[:maxOptions]
	}

	prompt := buildChoosePrompt(questionText, options, knowledge)

	a.logger.Debug("gemini choose option request",
		zap.String("question", logger.TruncateForLog(questionText, 120)),
		zap.Int("options", len(options)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("choose option: %w", err)
	}

	answer := strings.TrimSpace(raw)
	if answer == "" || strings.EqualFold(answer, unknownAnswer) {
		return "", nil
	}

	for _, o := range options {
		if answer == o {
			return o, nil
		}
	}
	normAnswer := textnorm.Text(answer)
	for _, o := range options {
		if normAnswer == textnorm.Text(o) {
			return o, nil
		}
	}

	a.logger.Debug("gemini response outside option set, discarding",
		zap.String("response", logger.TruncateForLog(answer, 120)),
	)
	return "", nil
}

func (a *Assistant) FillText(ctx context.Context, questionText string, knowledge string, charBudget int) (string, error) {
	prompt := buildFillPrompt(questionText, knowledge, charBudget)

	a.logger.Debug("gemini fill text request",
		zap.String("question", logger.TruncateForLog(questionText, 120)),
		zap.Int("char_budget", charBudget),
	)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("fill text: %w", err)
	}

	answer := strings.TrimSpace(raw)
	if strings.EqualFold(answer, unknownAnswer) {
		return "", nil
	}
	if charBudget > 0 {
		runes := []rune(answer)
		if len(runes) > charBudget {
			answer = strings.TrimSpace(string(runes[:charBudget]))
		}
	}

	return answer, nil
}

func buildChoosePrompt(questionText string, options []string, knowledge string) string {
	var b strings.Builder
	b.WriteString("You help a job seeker complete an application form. ")
	b.WriteString("Given a question and the options visible to the user, choose the SINGLE best option based on the resume. ")
	b.WriteString("If unsure, choose the answer most likely to lead to an offer. ")
	b.WriteString("Respond with the option text EXACTLY as provided, or the word 'unknown'.\n\n")
	b.WriteString("Question: " + questionText + "\n")
	b.WriteString("Options:\n")
	for _, o := range options {
		b.WriteString("- " + o + "\n")
	}
	b.WriteString("\nResume:\n<<<\n" + knowledge + "\n>>>\n")
	b.WriteString("Answer with exactly one of the options or 'unknown'.")
	return b.String()
}

func buildFillPrompt(questionText string, knowledge string, charBudget int) string {
	var b strings.Builder
	b.WriteString("You fill job-application text fields using only facts from the provided resume. ")
	b.WriteString("If a question can be answered professionally with a single word or number, do so. ")
	b.WriteString("If the question asks for years, return an integer only. ")
	if charBudget > 0 {
		fmt.Fprintf(&b, "Limit the answer to %d characters unless the question explicitly requests a list. ", charBudget)
	}
	b.WriteString("Answer 'N/A' if the question does not apply.\n\n")
	b.WriteString("Question:\n" + questionText + "\n\n")
	b.WriteString("Resume:\n<<<\n" + knowledge + "\n>>>\n\n")
	b.WriteString("Return ONLY the filled answer text (no labels, no quotes, no markdown).")
	return b.String()
}
