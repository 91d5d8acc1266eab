// Package missed records required questions that no resolution strategy
// could answer. Every occurrence appends a CSV row for later review and
// bumps a per-question counter so frequently missed questions surface
// first. Logging is best effort and never fails the application flow.
package missed

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/question"
)

var csvHeader = []string{
	"timestamp", "url", "page_title", "q_key", "kind", "question",
	"control_id", "control_name", "options", "ans",
}

// PageContext identifies where a missed question was encountered.
type PageContext struct {
	URL   string
	Title string
}

// countEntry tracks how often one question key has been missed. The
// question text is refreshed on every hit so the file carries the most
// recent wording.
type countEntry struct {
	Question string `json:"question"`
	Kind     string `json:"kind"`
	Count    int    `json:"count"`
}

// Logger appends missed questions to a CSV file and maintains the
// counts JSON next to it.
type Logger struct {
	csvPath    string
	countsPath string
	logger     *zap.Logger
	now        func() time.Time
}

// NewLogger builds a missed-question logger writing to the given paths.
func NewLogger(csvPath, countsPath string, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{csvPath: csvPath, countsPath: countsPath, logger: log, now: time.Now}
}

// Record logs every question in the batch. Failures are logged and
// swallowed; a broken log file must not abort an application in flight.
func (l *Logger) Record(page PageContext, questions []*question.Record) {
	if len(questions) == 0 {
		return
	}

	ts := l.now().Format("2006-01-02T15:04:05")

	rows := make([][]string, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, []string{
			ts,
			page.URL,
			page.Title,
			q.Key(),
			string(q.Kind),
			strings.TrimSpace(q.Text),
			q.ControlID,
			q.ControlName,
			optionsColumn(q),
			"",
		})
	}

	if err := l.appendRows(rows); err != nil {
		l.logger.Warn("writing missed-question csv failed", zap.Error(err))
	}
	if err := l.bumpCounts(questions); err != nil {
		l.logger.Warn("updating missed-question counts failed", zap.Error(err))
	}

	keys := make([]string, 0, len(questions))
	for _, q := range questions {
		keys = append(keys, q.Key())
	}
	l.logger.Info("recorded unanswered required questions",
		zap.Int("count", len(questions)),
		zap.Strings("keys", keys),
	)
}

func optionsColumn(q *question.Record) string {
	var b strings.Builder
	for _, opt := range q.Options {
		if opt.Label == "" {
			continue
		}
		b.WriteString(" | ")
		b.WriteString(opt.Label)
	}
	return b.String()
}

// appendRows opens the CSV in append mode, writing the header first when
// the file does not exist yet.
func (l *Logger) appendRows(rows [][]string) error {
	_, statErr := os.Stat(l.csvPath)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

// bumpCounts increments the per-key counters. Counters only ever grow;
// resolving a question later does not erase its history.
func (l *Logger) bumpCounts(questions []*question.Record) error {
	counts := map[string]countEntry{}
	if data, err := os.ReadFile(l.countsPath); err == nil {
		if err := json.Unmarshal(data, &counts); err != nil {
			l.logger.Warn("missed-question counts corrupt, starting over", zap.Error(err))
			counts = map[string]countEntry{}
		}
	}

	for _, q := range questions {
		key := q.Key()
		entry := counts[key]
		entry.Count++
		entry.Kind = string(q.Kind)
		if text := strings.TrimSpace(q.Text); text != "" {
			entry.Question = text
		}
		counts[key] = entry
	}

	data, err := json.MarshalIndent(counts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.countsPath, data, 0o644)
}
