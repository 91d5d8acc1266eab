package missed

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/question"
)

func testLogger(t *testing.T) (*Logger, string, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "missed.csv")
	countsPath := filepath.Join(dir, "missed_counts.json")
	l := NewLogger(csvPath, countsPath, zap.NewNop())
	l.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return l, csvPath, countsPath
}

func sampleQuestion(text string) *question.Record {
	return &question.Record{
		Text:        text,
		Kind:        question.SingleChoice,
		Required:    true,
		ControlID:   "ctl-1",
		ControlName: "sponsorship",
		Options:     []question.Option{{Label: "Yes"}, {Label: "No"}},
	}
}

func TestRecordWritesHeaderOnceAndAppends(t *testing.T) {
	t.Parallel()

	l, csvPath, _ := testLogger(t)
	q := sampleQuestion("Will you require sponsorship?")

	page := PageContext{URL: "https://example.com/apply", Title: "Apply"}
	l.Record(page, []*question.Record{q})
	l.Record(page, []*question.Record{q})

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want header + 2 rows, got %d rows", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][3] != "q_key" || rows[0][9] != "ans" {
		t.Fatalf("unexpected header: %v", rows[0])
	}

	row := rows[1]
	if row[1] != page.URL || row[2] != page.Title {
		t.Fatalf("page context not recorded: %v", row)
	}
	if row[3] != q.Key() {
		t.Fatalf("q_key = %q, want %q", row[3], q.Key())
	}
	if !strings.Contains(row[8], "Yes") || !strings.Contains(row[8], "No") {
		t.Fatalf("options column missing labels: %q", row[8])
	}
	if row[9] != "" {
		t.Fatalf("ans column must be empty, got %q", row[9])
	}
}

func TestCountsAccumulateAndKeepLatestText(t *testing.T) {
	t.Parallel()

	l, _, countsPath := testLogger(t)
	page := PageContext{URL: "https://example.com/apply"}

	first := sampleQuestion("Will you require sponsorship?")
	l.Record(page, []*question.Record{first})

	// Same key, fresher wording.
	second := sampleQuestion("Will you require sponsorship?")
	second.Text = "Will you require sponsorship? "
	l.Record(page, []*question.Record{second})

	data, err := os.ReadFile(countsPath)
	if err != nil {
		t.Fatalf("read counts: %v", err)
	}
	var counts map[string]countEntry
	if err := json.Unmarshal(data, &counts); err != nil {
		t.Fatalf("parse counts: %v", err)
	}

	entry, ok := counts[first.Key()]
	if !ok {
		t.Fatalf("no entry for %q in %v", first.Key(), counts)
	}
	if entry.Count != 2 {
		t.Fatalf("count = %d, want 2", entry.Count)
	}
	if entry.Question != "Will you require sponsorship?" {
		t.Fatalf("question text = %q", entry.Question)
	}
}

func TestRecordSurvivesCorruptCounts(t *testing.T) {
	t.Parallel()

	l, _, countsPath := testLogger(t)
	if err := os.WriteFile(countsPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt counts: %v", err)
	}

	q := sampleQuestion("Will you require sponsorship?")
	l.Record(PageContext{URL: "u"}, []*question.Record{q})

	data, err := os.ReadFile(countsPath)
	if err != nil {
		t.Fatalf("read counts: %v", err)
	}
	var counts map[string]countEntry
	if err := json.Unmarshal(data, &counts); err != nil {
		t.Fatalf("counts not rewritten as json: %v", err)
	}
	if counts[q.Key()].Count != 1 {
		t.Fatalf("count = %d, want 1", counts[q.Key()].Count)
	}
}

func TestRecordNoQuestionsWritesNothing(t *testing.T) {
	t.Parallel()

	l, csvPath, countsPath := testLogger(t)
	l.Record(PageContext{URL: "u"}, nil)

	if _, err := os.Stat(csvPath); !os.IsNotExist(err) {
		t.Fatal("csv created for empty batch")
	}
	if _, err := os.Stat(countsPath); !os.IsNotExist(err) {
		t.Fatal("counts created for empty batch")
	}
}
