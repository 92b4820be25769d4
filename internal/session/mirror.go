package session

import (
	"context"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/mirror"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Mirror is a local copy of an attempt's answers that survives a restart.
type Mirror interface {
	Load(ctx context.Context, attemptID string) ([]mirror.Entry, error)
	Save(ctx context.Context, row model.AnswerRow) error
	MarkSynced(ctx context.Context, row model.AnswerRow) error
	Delete(ctx context.Context, attemptID string) error
}

// reconcile merges the local mirror into the restored answers. Entries the
// server never acknowledged win over server state and are queued again;
// acknowledged entries yield to the server.
func (s *Session) reconcile(ctx context.Context, exam model.Exam, detail model.AttemptDetail) {
	entries, err := s.mirror.Load(ctx, detail.ID)
	if err != nil {
		s.log.Warn("local mirror unavailable", "error", err)
		return
	}
	requeued := 0
	for _, e := range entries {
		if e.Synced {
			continue
		}
		item, ok := exam.Item(e.ItemID)
		if !ok {
			continue
		}
		local, err := answer.Normalize(item, e.Value)
		if err != nil || local == nil {
			s.log.Warn("skipping malformed local answer", "item_id", e.ItemID, "error", err)
			continue
		}
		if cur, ok := s.answers.Get(e.ItemID); ok && answer.Equal(cur, local) {
			if err := s.mirror.MarkSynced(ctx, e.AnswerRow); err != nil {
				s.log.Warn("mark local answer synced", "item_id", e.ItemID, "error", err)
			}
			continue
		}
		if err := s.answers.Set(e.ItemID, local); err != nil {
			continue
		}
		if err := s.writer.Record(ctx, e.ItemID, item.Type, local); err != nil {
			s.log.Warn("unsaved local answer still pending", "item_id", e.ItemID, "error", err)
		}
		requeued++
	}
	if requeued > 0 {
		s.log.Info("restored unsaved local answers", "count", requeued)
	}
}

func (s *Session) row(item model.ExamItem, v answer.Value) (model.AnswerRow, bool) {
	b, err := answer.Marshal(v)
	if err != nil {
		return model.AnswerRow{}, false
	}
	s.mu.Lock()
	attemptID := s.attempt.ID
	s.mu.Unlock()
	return model.AnswerRow{AttemptID: attemptID, ItemID: item.ID, ItemType: item.Type, Value: b}, true
}

func (s *Session) saveLocal(ctx context.Context, item model.ExamItem, v answer.Value) {
	if s.mirror == nil {
		return
	}
	row, ok := s.row(item, v)
	if !ok {
		return
	}
	if err := s.mirror.Save(ctx, row); err != nil {
		s.log.Warn("save local answer", "item_id", item.ID, "error", err)
	}
}

// markSynced is the writer's acknowledgement hook.
func (s *Session) markSynced(itemID string, v answer.Value) {
	if s.mirror == nil {
		return
	}
	item, ok := s.Exam().Item(itemID)
	if !ok {
		return
	}
	row, ok := s.row(item, v)
	if !ok {
		return
	}
	if err := s.mirror.MarkSynced(s.ctx, row); err != nil {
		s.log.Warn("mark local answer synced", "item_id", itemID, "error", err)
	}
}

func (s *Session) dropLocal(ctx context.Context, attemptID string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Delete(ctx, attemptID); err != nil {
		s.log.Warn("drop local answers", "error", err)
	}
}
