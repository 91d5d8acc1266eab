// Package resolve implements the layered per-question resolution strategy:
// page value, exact memory, fuzzy memory, slot memory, slot heuristics,
// and finally the generative backend. Confirmed answers flow back into the
// memory store so later runs need fewer interventions.
package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/ai"
	"github.com/applypilot/applypilot/internal/logger"
	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// PageDriver is the page capability the engine consumes. Question records
// are plain data; the driver re-resolves live handles from each record's
// locator.
type PageDriver interface {
	// ExtractQuestions returns the question records on the current step.
	ExtractQuestions(ctx context.Context) ([]*question.Record, error)

	// ReadValue returns the non-placeholder value currently displayed for
	// the question, if any.
	ReadValue(ctx context.Context, q *question.Record) (memory.Answer, bool, error)

	// ApplyValue writes the value into the page.
	ApplyValue(ctx context.Context, q *question.Record, ans memory.Answer) error

	// DropdownOptions reads the live option list of a dropdown question,
	// placeholders excluded.
	DropdownOptions(ctx context.Context, q *question.Record) ([]string, error)
}

// Config carries the tunables for the generative fallback.
type Config struct {
	// AIEnabled gates the generative fallback entirely.
	AIEnabled bool
	// Knowledge is the resume/knowledge document handed to the backend.
	Knowledge string
	// MaxKnowledgeChars truncates Knowledge before every backend call.
	MaxKnowledgeChars int
	// MaxAnswerChars bounds generated free-text answers.
	MaxAnswerChars int
}

// Engine resolves the questions of one form step against the memory store.
type Engine struct {
	store     *memory.Store
	slots     *question.SlotTable
	assistant ai.Assistant
	cfg       Config
	logger    *zap.Logger
}

// New builds an engine. assistant may be nil when the generative fallback
// is disabled.
func New(store *memory.Store, slots *question.SlotTable, assistant ai.Assistant, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if slots == nil {
		slots = question.DefaultSlotTable()
	}
	return &Engine{store: store, slots: slots, assistant: assistant, cfg: cfg, logger: log}
}

// StepResult summarizes one processed form step. Missed holds required
// questions that no strategy resolved; whether they block submission is
// the calling workflow's policy, not the engine's.
type StepResult struct {
	Questions int
	Applied   int
	Missed    []*question.Record
}

// ResolveStep extracts and resolves every question on the current step.
func (e *Engine) ResolveStep(ctx context.Context, driver PageDriver) (*StepResult, error) {
	questions, err := driver.ExtractQuestions(ctx)
	if err != nil {
		return nil, err
	}

	result := &StepResult{Questions: len(questions)}

	for _, q := range questions {
		applied := e.resolveOne(ctx, driver, q)
		if applied {
			result.Applied++
		}
	}

	// Classify leftovers after the whole step has been processed: a
	// required question lacking both a page value and any memory-resolvable
	// answer is missed.
	for _, q := range questions {
		if !q.Required || q.Kind == question.Informational {
			continue
		}
		if _, ok, _ := driver.ReadValue(ctx, q); ok {
			continue
		}
		if _, ok := e.store.Recall(q.Text); ok {
			continue
		}
		result.Missed = append(result.Missed, q)
	}

	e.logger.Info("form step resolved",
		zap.Int("questions", result.Questions),
		zap.Int("applied", result.Applied),
		zap.Int("missed", len(result.Missed)),
	)

	return result, nil
}

// resolveOne runs the layered strategy for a single question and reports
// whether a value was applied to the page.
func (e *Engine) resolveOne(ctx context.Context, driver PageDriver, q *question.Record) bool {
	log := e.logger.With(
		zap.String("question", logger.TruncateForLog(q.Text, 80)),
		zap.String("kind", string(q.Kind)),
	)

	if q.Kind == question.Informational {
		log.Debug("informational block, nothing to answer")
		return false
	}

	// A single option is a control, not a decision.
	if (q.Kind == question.SingleChoice || q.Kind == question.MultiChoice) && len(q.Options) == 1 {
		ans := memory.String(q.Options[0].Label)
		if q.Kind == question.MultiChoice {
			ans = memory.List([]string{q.Options[0].Label})
		}
		if err := driver.ApplyValue(ctx, q, ans); err != nil {
			log.Debug("sole-option auto-select failed", zap.Error(err))
			return false
		}
		log.Debug("auto-selected the sole option", zap.String("option", q.Options[0].Label))
		return true
	}

	// Never overwrite an existing page value; record it if memory has no
	// equivalent question yet.
	if current, ok, err := driver.ReadValue(ctx, q); err == nil && ok {
		if !e.store.HasEquivalent(q.Text) {
			normalized := normalizeForStorage(current)
			if err := e.store.Remember(q.Text, normalized, q.Kind); err != nil {
				log.Warn("recording prefilled answer failed", zap.Error(err))
			} else {
				log.Debug("recorded prefilled answer", zap.String("answer", normalized.Primary()))
			}
		}
		log.Debug("page already answered, skipping")
		return false
	}

	options := e.liveOptions(ctx, driver, q)

	// Memory recall: exact, then fuzzy, then adapt to the live options.
	if rec, ok := e.store.Recall(q.Text); ok {
		if adapted, usable := memory.Adapt(rec.Answer, options); usable {
			err := driver.ApplyValue(ctx, q, adapted)
			if err == nil {
				log.Info("resolved from memory", zap.String("answer", adapted.Primary()))
				return true
			}
			log.Debug("applying remembered answer failed", zap.Error(err))
		} else {
			log.Debug("remembered answer does not adapt to current options")
		}
	}

	slotKey := e.slots.Detect(q)

	// Slot memory: canonical facts recur across differently worded
	// questions and outrank heuristics and the backend.
	if slotKey != "" {
		if slotVal, ok := e.store.RecallSlot(slotKey); ok {
			if adapted, usable := memory.Adapt(slotVal, options); usable {
				if err := driver.ApplyValue(ctx, q, adapted); err == nil {
					// Also store under the exact question so the next
					// encounter is a cheap exact hit.
					if err := e.store.Remember(q.Text, adapted, q.Kind); err != nil {
						log.Warn("persisting slot-derived answer failed", zap.Error(err))
					}
					log.Info("resolved from slot memory",
						zap.String("slot", slotKey),
						zap.String("answer", adapted.Primary()),
					)
					return true
				}
			}
		}
	}

	// Slot heuristic: fixed priority rules over the live options.
	if slotKey != "" && len(options) > 0 {
		if pick := heuristicPick(slotKey, options); pick != "" {
			ans := e.shapeChoice(q, pick)
			if err := driver.ApplyValue(ctx, q, ans); err == nil {
				if err := e.store.Remember(q.Text, ans, q.Kind); err != nil {
					log.Warn("persisting heuristic answer failed", zap.Error(err))
				}
				if err := e.store.RememberSlot(slotKey, memory.String(pick)); err != nil {
					log.Warn("persisting heuristic slot failed", zap.Error(err))
				}
				log.Info("resolved by slot heuristic",
					zap.String("slot", slotKey),
					zap.String("answer", pick),
				)
				return true
			}
		}
	}

	// Generative fallback.
	if !e.cfg.AIEnabled || e.assistant == nil {
		log.Debug("generative fallback disabled, question unresolved")
		return false
	}

	if q.IsText() {
		return e.generateText(ctx, driver, q, log)
	}
	return e.generateChoice(ctx, driver, q, options, log)
}

func (e *Engine) generateChoice(ctx context.Context, driver PageDriver, q *question.Record, options []string, log *zap.Logger) bool {
	if len(options) == 0 {
		return false
	}

	choice, err := e.assistant.ChooseOption(ctx, q.Text, options, e.knowledge())
	if err != nil {
		log.Warn("generative backend failed, question unresolved", zap.Error(err))
		return false
	}
	if choice == "" {
		log.Debug("generative backend declined to choose")
		return false
	}

	ans := e.shapeChoice(q, choice)
	if err := driver.ApplyValue(ctx, q, ans); err != nil {
		log.Debug("applying generated choice failed", zap.Error(err))
		return false
	}

	// Generative answers are persisted per-question only, never promoted
	// to slots.
	if err := e.store.Remember(q.Text, ans, q.Kind); err != nil {
		log.Warn("persisting generated answer failed", zap.Error(err))
	}
	log.Info("resolved by generative backend", zap.String("answer", choice))
	return true
}

func (e *Engine) generateText(ctx context.Context, driver PageDriver, q *question.Record, log *zap.Logger) bool {
	text, err := e.assistant.FillText(ctx, q.Text, e.knowledge(), e.cfg.MaxAnswerChars)
	if err != nil {
		log.Warn("generative backend failed, question unresolved", zap.Error(err))
		return false
	}
	if text == "" {
		log.Debug("generative backend produced no text")
		return false
	}

	ans := memory.String(text)
	if err := driver.ApplyValue(ctx, q, ans); err != nil {
		log.Debug("applying generated text failed", zap.Error(err))
		return false
	}

	if err := e.store.Remember(q.Text, ans, q.Kind); err != nil {
		log.Warn("persisting generated answer failed", zap.Error(err))
	}
	log.Info("resolved by generative backend", zap.String("answer", logger.TruncateForLog(text, 60)))
	return true
}

// liveOptions returns the option labels currently offered by the page.
func (e *Engine) liveOptions(ctx context.Context, driver PageDriver, q *question.Record) []string {
	switch q.Kind {
	case question.SingleChoice, question.MultiChoice:
		return q.OptionLabels()
	case question.Dropdown:
		options, err := driver.DropdownOptions(ctx, q)
		if err != nil {
			e.logger.Debug("reading dropdown options failed", zap.Error(err))
			return nil
		}
		return options
	}
	return nil
}

// shapeChoice wraps a chosen label in the answer shape the question kind
// records.
func (e *Engine) shapeChoice(q *question.Record, label string) memory.Answer {
	switch q.Kind {
	case question.MultiChoice:
		return memory.List([]string{label})
	case question.Dropdown:
		return memory.Pair(label, "")
	default:
		return memory.String(label)
	}
}

func (e *Engine) knowledge() string {
	k := e.cfg.Knowledge
	if e.cfg.MaxKnowledgeChars > 0 {
		runes := []rune(k)
		if len(runes) > e.cfg.MaxKnowledgeChars {
			k = string(runes[:e.cfg.MaxKnowledgeChars])
		}
	}
	return k
}

// normalizeForStorage rewrites answer values to canonical spellings before
// they enter the store.
func normalizeForStorage(ans memory.Answer) memory.Answer {
	switch ans.Shape {
	case memory.ShapeList:
		items := make([]string, 0, len(ans.List))
		for _, item := range ans.List {
			items = append(items, textnorm.Answer(item))
		}
		return memory.List(items)
	case memory.ShapePair:
		return memory.Pair(textnorm.Answer(ans.Text), ans.Value)
	default:
		return memory.String(textnorm.Answer(ans.Text))
	}
}
