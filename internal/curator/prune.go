package curator

import (
	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// PruneStats summarizes a pruning run. Conflicts count questions whose
// stored answer disagrees with the canonical slot value; those entries are
// kept for manual review, never silently dropped.
type PruneStats struct {
	Removed   int
	Kept      int
	Conflicts int
}

// Prune removes question entries that a slot already covers, provided the
// stored answer agrees with the slot's canonical value. Questions matching
// a slot pattern whose slot has no stored value are kept, as are all
// conflicting entries. The input document is not modified.
func Prune(doc *memory.Document, slots *question.SlotTable, log *zap.Logger) (*memory.Document, *PruneStats) {
	if log == nil {
		log = zap.NewNop()
	}
	if slots == nil {
		slots = question.DefaultSlotTable()
	}

	out := memory.NewDocument()
	for slot, ans := range doc.Slots {
		out.Slots[slot] = ans
	}

	stats := &PruneStats{}
	for key, rec := range doc.Questions {
		// Slot detection over bare stored keys: text kind so URL slots
		// can match the way they do on live pages.
		slotKey := slots.Detect(&question.Record{Text: key, Kind: question.ShortText})
		if slotKey == "" {
			out.Questions[key] = rec
			stats.Kept++
			continue
		}

		slotAns, ok := doc.Slots[slotKey]
		if !ok {
			out.Questions[key] = rec
			stats.Kept++
			continue
		}

		if answersAgree(slotAns, rec.Answer) {
			stats.Removed++
			log.Debug("pruned slot-covered question",
				zap.String("slot", slotKey),
				zap.String("question", key),
			)
			continue
		}

		out.Questions[key] = rec
		stats.Kept++
		stats.Conflicts++
		log.Warn("answer conflicts with slot, keeping for review",
			zap.String("slot", slotKey),
			zap.String("question", key),
			zap.String("slot_answer", slotAns.Primary()),
			zap.String("stored_answer", rec.Answer.Primary()),
		)
	}

	log.Info("prune complete",
		zap.Int("removed", stats.Removed),
		zap.Int("kept", stats.Kept),
		zap.Int("conflicts", stats.Conflicts),
	)
	return out, stats
}

// answersAgree compares a slot value with a stored answer on their
// normalized display text.
func answersAgree(slot, stored memory.Answer) bool {
	return textnorm.Text(slot.Primary()) == textnorm.Text(stored.Primary())
}
