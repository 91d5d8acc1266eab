// Package memory is the durable question/answer store: one answer record
// per normalized question key plus a separate namespace of canonical slot
// facts. Every write is immediately persisted through the injected backend,
// so a crash loses at most the in-flight question.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/fuzzy"
	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// slotsKey is the reserved top-level key holding the slot namespace; every
// other top-level key is a normalized question.
const slotsKey = "_slots"

// Record is the persisted answer for one normalized question.
type Record struct {
	Kind   question.Kind `json:"kind,omitempty"`
	Answer Answer        `json:"answer"`
	TS     time.Time     `json:"ts"`
}

// Backend persists the serialized store document.
type Backend interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileBackend stores the document in a single file.
type FileBackend struct {
	Path string
}

func (b *FileBackend) Load() ([]byte, error) {
	return os.ReadFile(b.Path)
}

func (b *FileBackend) Save(data []byte) error {
	return os.WriteFile(b.Path, data, 0o644)
}

// MemoryBackend keeps the document in memory, for tests and dry runs.
type MemoryBackend struct {
	Data []byte
}

func (b *MemoryBackend) Load() ([]byte, error) { return b.Data, nil }

func (b *MemoryBackend) Save(data []byte) error {
	b.Data = append([]byte(nil), data...)
	return nil
}

// Document is the parsed store file. The curator reads and rewrites the
// same structure, so the format must stay stable.
type Document struct {
	Slots     map[string]Answer
	Questions map[string]Record
}

// NewDocument returns an empty document with initialized maps.
func NewDocument() *Document {
	return &Document{
		Slots:     make(map[string]Answer),
		Questions: make(map[string]Record),
	}
}

// ParseDocument decodes the store file format.
func ParseDocument(data []byte) (*Document, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse memory document: %w", err)
	}

	doc := NewDocument()
	for key, msg := range raw {
		if key == slotsKey {
			if err := json.Unmarshal(msg, &doc.Slots); err != nil {
				return nil, fmt.Errorf("parse slot namespace: %w", err)
			}
			continue
		}
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			return nil, fmt.Errorf("parse record %q: %w", key, err)
		}
		doc.Questions[key] = rec
	}

	if doc.Slots == nil {
		doc.Slots = make(map[string]Answer)
	}

	return doc, nil
}

// Marshal encodes the document in the store file format.
func (d *Document) Marshal() ([]byte, error) {
	out := make(map[string]any, len(d.Questions)+1)
	out[slotsKey] = d.Slots
	for key, rec := range d.Questions {
		out[key] = rec
	}
	return json.MarshalIndent(out, "", "  ")
}

// Store is the live question/answer memory.
type Store struct {
	backend Backend
	logger  *zap.Logger
	doc     *Document
}

// Open loads the store from the backend. A missing or unreadable document
// starts an empty store rather than failing: the system must bootstrap
// with zero prior memory.
func Open(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	store := &Store{backend: backend, logger: logger, doc: NewDocument()}

	data, err := backend.Load()
	if err != nil {
		logger.Warn("memory store unreadable, starting empty", zap.Error(err))
		return store
	}
	if len(data) == 0 {
		return store
	}

	doc, err := ParseDocument(data)
	if err != nil {
		logger.Warn("memory store unparseable, starting empty", zap.Error(err))
		return store
	}

	store.doc = doc
	logger.Debug("memory store loaded",
		zap.Int("questions", len(doc.Questions)),
		zap.Int("slots", len(doc.Slots)),
	)
	return store
}

// Len returns the number of stored question records.
func (s *Store) Len() int { return len(s.doc.Questions) }

// Recall finds the stored answer for a question: exact normalized-key
// lookup first, then a linear fuzzy scan over all stored questions. The
// scan is O(n) per miss, acceptable for stores bounded by the number of
// distinct questions ever seen.
func (s *Store) Recall(questionText string) (Record, bool) {
	key := textnorm.Question(questionText)
	if rec, ok := s.doc.Questions[key]; ok {
		return rec, true
	}

	// Sorted scan keeps fuzzy-hit selection deterministic.
	keys := make([]string, 0, len(s.doc.Questions))
	for k := range s.doc.Questions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, stored := range keys {
		if fuzzy.MatchQuestion(stored, questionText, fuzzy.QuestionThreshold) {
			s.logger.Debug("fuzzy memory hit",
				zap.String("question", questionText),
				zap.String("stored", stored),
			)
			return s.doc.Questions[stored], true
		}
	}

	return Record{}, false
}

// HasEquivalent reports whether a stored question already covers this one,
// exactly or by fuzzy match.
func (s *Store) HasEquivalent(questionText string) bool {
	_, ok := s.Recall(questionText)
	return ok
}

// Remember writes the answer record at the normalized key, overwriting any
// previous record, and synchronously persists the whole store.
func (s *Store) Remember(questionText string, ans Answer, kind question.Kind) error {
	key := textnorm.Question(questionText)
	if key == "" {
		return fmt.Errorf("empty question key")
	}

	s.doc.Questions[key] = Record{Kind: kind, Answer: ans, TS: time.Now()}
	return s.persist()
}

// RecallSlot reads a canonical fact from the slot namespace.
func (s *Store) RecallSlot(slotKey string) (Answer, bool) {
	ans, ok := s.doc.Slots[slotKey]
	return ans, ok
}

// RememberSlot writes a canonical fact and persists.
func (s *Store) RememberSlot(slotKey string, ans Answer) error {
	s.doc.Slots[slotKey] = ans
	return s.persist()
}

// Document exposes the underlying document for batch tools.
func (s *Store) Document() *Document { return s.doc }

func (s *Store) persist() error {
	data, err := s.doc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal memory store: %w", err)
	}
	if err := s.backend.Save(data); err != nil {
		return fmt.Errorf("persist memory store: %w", err)
	}
	return nil
}
