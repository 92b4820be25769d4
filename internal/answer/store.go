package answer

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Store maps item IDs to canonical answers for a single attempt.
// Items without an entry are unanswered.
type Store struct {
	mu     sync.RWMutex
	values map[string]Value
	frozen bool
}

// NewStore creates an empty answer store.
func NewStore() *Store {
	return &Store{values: map[string]Value{}}
}

// Set upserts the answer for an item.
func (s *Store) Set(itemID string, v Value) error {
	if v == nil {
		return fmt.Errorf("set %s: nil answer", itemID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return model.ErrImmutableAttempt
	}
	s.values[itemID] = v
	return nil
}

// Get returns the answer for an item.
func (s *Store) Get(itemID string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[itemID]
	return v, ok
}

// Len returns the number of answered items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of all answers.
func (s *Store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Freeze makes the store read-only.
func (s *Store) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen reports whether the store is read-only.
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Restore loads persisted rows through Normalize. A row that cannot be
// normalized, or whose item is not part of the exam, is skipped and logged;
// the remaining rows still load. It returns the number of rows restored.
func (s *Store) Restore(exam model.Exam, rows []model.AnswerRow, log *slog.Logger) int {
	if log == nil {
		log = slog.Default()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range rows {
		item, ok := exam.Item(row.ItemID)
		if !ok {
			log.Warn("skipping answer for unknown item", "attempt_id", row.AttemptID, "item_id", row.ItemID)
			continue
		}
		v, err := Normalize(item, row.Value)
		if err != nil {
			log.Warn("skipping malformed answer", "attempt_id", row.AttemptID, "item_id", row.ItemID, "error", err)
			continue
		}
		if v == nil {
			continue
		}
		s.values[row.ItemID] = v
		n++
	}
	return n
}
