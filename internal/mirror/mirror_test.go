package mirror

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

func newTestMirror(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func row(item, value string) model.AnswerRow {
	return model.AnswerRow{AttemptID: "a1", ItemID: item, ItemType: model.ItemEssay, Value: json.RawMessage(value)}
}

func TestSaveAndMarkSynced(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	if err := m.Save(ctx, row("q1", `"draft"`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Save(ctx, row("q2", `"other"`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.MarkSynced(ctx, row("q1", `"draft"`)); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	entries, err := m.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Synced || entries[1].Synced {
		t.Errorf("unexpected synced flags: %v, %v", entries[0].Synced, entries[1].Synced)
	}
	if string(entries[1].Value) != `"other"` || entries[1].ItemType != model.ItemEssay {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
}

func TestStaleAckKeepsNewerEdit(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	_ = m.Save(ctx, row("q1", `"old"`))
	_ = m.Save(ctx, row("q1", `"new"`))
	// Acknowledgement of the superseded value arrives late.
	if err := m.MarkSynced(ctx, row("q1", `"old"`)); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	entries, _ := m.Load(ctx, "a1")
	if len(entries) != 1 || entries[0].Synced || string(entries[0].Value) != `"new"` {
		t.Errorf("newer edit should stay unsynced, got %+v", entries)
	}

	// Saving again after a sync clears the flag.
	_ = m.MarkSynced(ctx, row("q1", `"new"`))
	_ = m.Save(ctx, row("q1", `"newer"`))
	entries, _ = m.Load(ctx, "a1")
	if entries[0].Synced {
		t.Error("edit after sync should be unsynced")
	}
}

func TestDelete(t *testing.T) {
	m := newTestMirror(t)
	ctx := context.Background()

	_ = m.Save(ctx, row("q1", `"x"`))
	other := row("q1", `"y"`)
	other.AttemptID = "a2"
	_ = m.Save(ctx, other)

	if err := m.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if entries, _ := m.Load(ctx, "a1"); len(entries) != 0 {
		t.Errorf("expected no entries for a1, got %d", len(entries))
	}
	if entries, _ := m.Load(ctx, "a2"); len(entries) != 1 {
		t.Errorf("expected a2 untouched, got %d", len(entries))
	}
}
