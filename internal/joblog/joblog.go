// Package joblog keeps a daily CSV of processed job listings so a day's
// run can be audited without digging through structured logs.
package joblog

import (
	"encoding/csv"
	"os"
	"time"

	"go.uber.org/zap"
)

var header = []string{"Timestamp", "Job Title", "Company", "Job URL", "Status", "Description"}

// Log appends one row per processed listing to a file named after the
// current day. Writing is best effort.
type Log struct {
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New builds a log writing to files named prefix + YYYYMMDD + ".csv".
func New(prefix string, log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{prefix: prefix, logger: log, now: time.Now}
}

// Path returns today's log file path.
func (l *Log) Path() string {
	return l.prefix + l.now().Format("20060102") + ".csv"
}

// Append records one listing outcome. Status is free form, for example
// "applied", "skipped" or "halted".
func (l *Log) Append(title, company, url, status, description string) {
	path := l.Path()

	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("opening job log failed", zap.Error(err))
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(header); err != nil {
			l.logger.Warn("writing job log header failed", zap.Error(err))
			return
		}
	}
	row := []string{l.now().Format(time.RFC3339), title, company, url, status, description}
	if err := w.Write(row); err != nil {
		l.logger.Warn("writing job log row failed", zap.Error(err))
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		l.logger.Warn("flushing job log failed", zap.Error(err))
	}
}
