package answer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

func testExam() model.Exam {
	return model.Exam{
		ExamMeta: model.ExamMeta{ID: "e1", Title: "Quiz"},
		Items:    []model.ExamItem{mcqItem, tfItem, essayItem, matchingItem},
	}
}

func TestStoreSetGetFreeze(t *testing.T) {
	s := NewStore()

	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	if _, ok := s.Get("q1"); ok {
		t.Fatal("expected q1 to be unanswered")
	}

	if err := s.Set("q1", MCQ(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("q3", Text("")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 answers, got %d", s.Len())
	}
	if v, _ := s.Get("q3"); v != Text("") {
		t.Errorf("expected empty text answer, got %#v", v)
	}

	if err := s.Set("q2", nil); err == nil {
		t.Error("expected error for nil answer")
	}

	s.Freeze()
	if !s.Frozen() {
		t.Fatal("expected store to be frozen")
	}
	if err := s.Set("q1", MCQ(0)); !errors.Is(err, model.ErrImmutableAttempt) {
		t.Errorf("expected ErrImmutableAttempt, got %v", err)
	}
	if v, _ := s.Get("q1"); v != MCQ(1) {
		t.Errorf("frozen answer changed to %v", v)
	}
}

func TestStoreRestoreSkipsBadRows(t *testing.T) {
	s := NewStore()
	rows := []model.AnswerRow{
		{AttemptID: "a1", ItemID: "q1", ItemType: model.ItemMCQ, Value: json.RawMessage(`"2"`)},
		{AttemptID: "a1", ItemID: "q2", ItemType: model.ItemTrueFalse, Value: json.RawMessage(`"maybe"`)},
		{AttemptID: "a1", ItemID: "q3", ItemType: model.ItemEssay, Value: json.RawMessage(`"draft"`)},
		{AttemptID: "a1", ItemID: "gone", ItemType: model.ItemEssay, Value: json.RawMessage(`"x"`)},
		{AttemptID: "a1", ItemID: "q4", ItemType: model.ItemMatching, Value: json.RawMessage(`"[{broken"`)},
	}

	n := s.Restore(testExam(), rows, nil)
	if n != 3 {
		t.Fatalf("expected 3 restored rows, got %d", n)
	}
	if v, _ := s.Get("q1"); v != MCQ(2) {
		t.Errorf("q1 = %v, want 2", v)
	}
	if _, ok := s.Get("q2"); ok {
		t.Error("malformed truefalse row should be unanswered")
	}
	if v, _ := s.Get("q3"); v != Text("draft") {
		t.Errorf("q3 = %v, want draft", v)
	}
	if v, ok := s.Get("q4"); !ok || len(v.(Matching)) != 0 {
		t.Errorf("malformed matching should restore as empty, got %v", v)
	}
}
