package resolve

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/question"
)

type fakeDriver struct {
	questions []*question.Record
	values    map[string]memory.Answer
	dropdowns map[string][]string
	applied   map[string]memory.Answer
	applyErr  error
}

func newFakeDriver(questions ...*question.Record) *fakeDriver {
	return &fakeDriver{
		questions: questions,
		values:    make(map[string]memory.Answer),
		dropdowns: make(map[string][]string),
		applied:   make(map[string]memory.Answer),
	}
}

func (d *fakeDriver) ExtractQuestions(context.Context) ([]*question.Record, error) {
	return d.questions, nil
}

func (d *fakeDriver) ReadValue(_ context.Context, q *question.Record) (memory.Answer, bool, error) {
	if ans, ok := d.applied[q.Key()]; ok {
		return ans, true, nil
	}
	ans, ok := d.values[q.Key()]
	return ans, ok, nil
}

func (d *fakeDriver) ApplyValue(_ context.Context, q *question.Record, ans memory.Answer) error {
	if d.applyErr != nil {
		return d.applyErr
	}
	d.applied[q.Key()] = ans
	return nil
}

func (d *fakeDriver) DropdownOptions(_ context.Context, q *question.Record) ([]string, error) {
	return d.dropdowns[q.Key()], nil
}

type stubAssistant struct {
	choice      string
	text        string
	err         error
	chooseCalls int
	fillCalls   int
}

func (s *stubAssistant) ChooseOption(context.Context, string, []string, string) (string, error) {
	s.chooseCalls++
	return s.choice, s.err
}

func (s *stubAssistant) FillText(context.Context, string, string, int) (string, error) {
	s.fillCalls++
	return s.text, s.err
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.Open(&memory.MemoryBackend{}, zap.NewNop())
}

func singleChoice(text string, required bool, labels ...string) *question.Record {
	opts := make([]question.Option, len(labels))
	for i, l := range labels {
		opts[i] = question.Option{Label: l}
	}
	return &question.Record{Text: text, Kind: question.SingleChoice, Required: required, Options: opts}
}

func TestWorkAuthHeuristicFreshStore(t *testing.T) {
	t.Parallel()

	// Fresh empty store, required work-auth question, no slot value yet:
	// the heuristic picks Yes and both the record and the slot persist.
	store := newStore(t)
	q := singleChoice("Are you legally authorized to work in the US?", true, "Yes", "No")
	driver := newFakeDriver(q)

	engine := New(store, nil, nil, Config{}, zap.NewNop())
	result, err := engine.ResolveStep(context.Background(), driver)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if got := driver.applied[q.Key()]; got.Text != "Yes" {
		t.Fatalf("applied %+v, want Yes", got)
	}
	if rec, ok := store.Recall(q.Text); !ok || rec.Answer.Text != "Yes" {
		t.Fatalf("per-question record = %+v, %v", rec, ok)
	}
	if slot, ok := store.RecallSlot(question.SlotWorkAuth); !ok || slot.Text != "Yes" {
		t.Fatalf("work_auth slot = %+v, %v", slot, ok)
	}
	if len(result.Missed) != 0 {
		t.Fatalf("nothing should be missed, got %d", len(result.Missed))
	}
}

func TestSlotMemoryBeatsHeuristicAndBackend(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.RememberSlot(question.SlotCountry, memory.String("United States")); err != nil {
		t.Fatalf("RememberSlot: %v", err)
	}

	q := &question.Record{Text: "What country do you reside in?", Kind: question.Dropdown, Required: true}
	driver := newFakeDriver(q)
	driver.dropdowns[q.Key()] = []string{"Canada", "United States of America", "Mexico"}

	assistant := &stubAssistant{choice: "Canada"}
	engine := New(store, nil, assistant, Config{AIEnabled: true}, zap.NewNop())

	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	got := driver.applied[q.Key()]
	if got.Primary() != "United States of America" {
		t.Fatalf("slot value not adapted onto live options: %+v", got)
	}
	if assistant.chooseCalls != 0 {
		t.Fatal("generative backend must not be consulted when a slot resolves")
	}
	// A plain record is written for the exact question text.
	if _, ok := store.Recall(q.Text); !ok {
		t.Fatal("slot-derived answer should be cached per-question")
	}
}

func TestExistingPageValueIsNeverOverwritten(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	if err := store.Remember("Are you willing to relocate?", memory.String("Yes"), question.SingleChoice); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	q := singleChoice("Are you willing to relocate?", true, "Yes", "No")
	driver := newFakeDriver(q)
	driver.values[q.Key()] = memory.String("No")

	engine := New(store, nil, nil, Config{}, zap.NewNop())
	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if _, ok := driver.applied[q.Key()]; ok {
		t.Fatal("engine overwrote a page-provided value")
	}
}

func TestPrefilledAnswerIsRecorded(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	q := singleChoice("Do you have a commercial driving license?", false, "Yes", "No")
	driver := newFakeDriver(q)
	driver.values[q.Key()] = memory.String("yeah")

	engine := New(store, nil, nil, Config{}, zap.NewNop())
	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	rec, ok := store.Recall(q.Text)
	if !ok {
		t.Fatal("prefilled answer was not recorded")
	}
	// Stored in canonical spelling.
	if rec.Answer.Text != "Yes" {
		t.Fatalf("prefilled answer not normalized: %q", rec.Answer.Text)
	}
}

func TestSoleOptionAutoSelected(t *testing.T) {
	t.Parallel()

	q := singleChoice("Acknowledge the terms", true, "I agree")
	driver := newFakeDriver(q)

	engine := New(newStore(t), nil, nil, Config{}, zap.NewNop())
	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if got := driver.applied[q.Key()]; got.Text != "I agree" {
		t.Fatalf("sole option not auto-selected: %+v", got)
	}
}

func TestGenerativeFallbackForChoices(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	q := singleChoice("Which shift do you prefer?", true, "Day", "Night")
	driver := newFakeDriver(q)

	assistant := &stubAssistant{choice: "Day"}
	engine := New(store, nil, assistant, Config{AIEnabled: true}, zap.NewNop())

	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if got := driver.applied[q.Key()]; got.Text != "Day" {
		t.Fatalf("generated choice not applied: %+v", got)
	}
	if _, ok := store.Recall(q.Text); !ok {
		t.Fatal("generated answer should persist per-question")
	}
	// Generative answers never become slots.
	if _, ok := store.RecallSlot(question.SlotWorkAuth); ok {
		t.Fatal("unexpected slot write")
	}
}

func TestGenerativeDeclineLeavesRequiredQuestionMissed(t *testing.T) {
	t.Parallel()

	q := singleChoice("Which shift do you prefer?", true, "Day", "Night")
	driver := newFakeDriver(q)

	assistant := &stubAssistant{choice: ""}
	engine := New(newStore(t), nil, assistant, Config{AIEnabled: true}, zap.NewNop())

	result, err := engine.ResolveStep(context.Background(), driver)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if len(result.Missed) != 1 || result.Missed[0].Key() != q.Key() {
		t.Fatalf("expected the question to be classified missed, got %+v", result.Missed)
	}
}

func TestBackendFailureDegradesToUnresolved(t *testing.T) {
	t.Parallel()

	q := singleChoice("Which shift do you prefer?", true, "Day", "Night")
	driver := newFakeDriver(q)

	assistant := &stubAssistant{err: errors.New("api down")}
	engine := New(newStore(t), nil, assistant, Config{AIEnabled: true}, zap.NewNop())

	result, err := engine.ResolveStep(context.Background(), driver)
	if err != nil {
		t.Fatalf("backend failure must not abort the step: %v", err)
	}
	if len(result.Missed) != 1 {
		t.Fatalf("expected one missed question, got %d", len(result.Missed))
	}
	if assistant.chooseCalls != 1 {
		t.Fatalf("backend must not be retried, called %d times", assistant.chooseCalls)
	}
}

func TestFreeTextGeneration(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	q := &question.Record{Text: "How many years of Jira experience do you have?", Kind: question.ShortText, Required: true}
	driver := newFakeDriver(q)

	assistant := &stubAssistant{text: "3"}
	engine := New(store, nil, assistant, Config{AIEnabled: true, MaxAnswerChars: 100}, zap.NewNop())

	if _, err := engine.ResolveStep(context.Background(), driver); err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if got := driver.applied[q.Key()]; got.Text != "3" {
		t.Fatalf("generated text not applied: %+v", got)
	}
	rec, ok := store.Recall(q.Text)
	if !ok || rec.Answer.Text != "3" {
		t.Fatalf("generated text not persisted verbatim: %+v, %v", rec, ok)
	}
}

func TestInformationalAndOptionalMissesAreNotReported(t *testing.T) {
	t.Parallel()

	info := &question.Record{Text: "We are an equal opportunity employer.", Kind: question.Informational, Required: true}
	optional := singleChoice("Optional survey question", false, "A", "B")
	driver := newFakeDriver(info, optional)

	engine := New(newStore(t), nil, nil, Config{}, zap.NewNop())
	result, err := engine.ResolveStep(context.Background(), driver)
	if err != nil {
		t.Fatalf("ResolveStep: %v", err)
	}

	if len(result.Missed) != 0 {
		t.Fatalf("informational/optional questions must not be missed, got %d", len(result.Missed))
	}
}
