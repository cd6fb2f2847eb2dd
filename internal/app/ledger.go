package app

import (
	"slices"
	"time"

	"live-quiz-service/internal/domain"
)

type ledgerKey struct {
	playerID string
	position int
}

// Ledger stores one entry per (player, question position). Entries are
// overwritten while the question is open; once frozen nothing changes.
// It is not safe for concurrent use; the owning Session serializes access.
type Ledger struct {
	sessionID string
	entries   map[ledgerKey]domain.LedgerEntry
	frozen    bool
}

func newLedger(sessionID string) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		entries:   make(map[ledgerKey]domain.LedgerEntry),
	}
}

// record replaces the entry for (player, position) and restamps answeredAt.
func (l *Ledger) record(playerID string, position int, selected []int, startedAt, now time.Time) (domain.LedgerEntry, error) {
	if l.frozen {
		return domain.LedgerEntry{}, domain.ErrQuestionClosed
	}
	entry := domain.LedgerEntry{
		SessionID:         l.sessionID,
		PlayerID:          playerID,
		QuestionPosition:  position,
		SelectedAnswerIDs: selected,
		QuestionStartedAt: startedAt,
		AnsweredAt:        now,
	}
	l.entries[ledgerKey{playerID: playerID, position: position}] = entry
	return entry, nil
}

func (l *Ledger) entry(playerID string, position int) (domain.LedgerEntry, bool) {
	e, ok := l.entries[ledgerKey{playerID: playerID, position: position}]
	return e, ok
}

func (l *Ledger) freeze() { l.frozen = true }

// normalizeSelection checks ids against the question and returns them sorted.
// Duplicates and unknown ids are rejected; enforceSingle caps single-answer
// questions at one selection.
func normalizeSelection(q domain.Question, ids []int, enforceSingle bool) ([]int, error) {
	if enforceSingle && q.SingleAnswer() && len(ids) > 1 {
		return nil, domain.ErrInvalidSelection
	}
	out := sortedCopy(ids)
	for i, id := range out {
		if id < 0 || id >= len(q.Answers) {
			return nil, domain.ErrInvalidSelection
		}
		if i > 0 && out[i-1] == id {
			return nil, domain.ErrInvalidSelection
		}
	}
	return out, nil
}

func sortedCopy(ids []int) []int {
	out := make([]int, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return out
}
