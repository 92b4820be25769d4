package answer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

var (
	mcqItem = model.ExamItem{ID: "q1", Type: model.ItemMCQ, Options: []model.Option{
		{Text: "red"}, {Text: "green"}, {Text: "blue"},
	}}
	tfItem       = model.ExamItem{ID: "q2", Type: model.ItemTrueFalse}
	essayItem    = model.ExamItem{ID: "q3", Type: model.ItemEssay}
	matchingItem = model.ExamItem{ID: "q4", Type: model.ItemMatching, Pairs: []model.MatchPair{
		{Left: "cat", Right: "meow"},
		{Left: "dog", Right: "woof"},
		{Left: "cow", Right: "moo"},
	}}
)

func TestNormalizeMCQ(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Value
		wantErr bool
	}{
		{"float index", float64(1), MCQ(1), false},
		{"int index", 2, MCQ(2), false},
		{"numeric string", "0", MCQ(0), false},
		{"padded string", " 2 ", MCQ(2), false},
		{"json bytes", json.RawMessage(`1`), MCQ(1), false},
		{"json string bytes", json.RawMessage(`"1"`), MCQ(1), false},
		{"nil is unanswered", nil, nil, false},
		{"json null is unanswered", json.RawMessage(`null`), nil, false},
		{"non-numeric", "b", nil, true},
		{"fractional", 1.5, nil, true},
		{"out of range", 3, nil, true},
		{"negative", -1, nil, true},
		{"bool", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(mcqItem, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, model.ErrMalformedAnswer) {
					t.Fatalf("expected ErrMalformedAnswer, got %v", err)
				}
				if got != nil {
					t.Errorf("expected no value on error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeTrueFalse(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    Value
		wantErr bool
	}{
		{"bool true", true, TrueFalse(true), false},
		{"bool false", false, TrueFalse(false), false},
		{"one", float64(1), TrueFalse(true), false},
		{"zero", 0, TrueFalse(false), false},
		{"string true", "true", TrueFalse(true), false},
		{"string false", "false", TrueFalse(false), false},
		{"string 1", "1", TrueFalse(true), false},
		{"string 0", "0", TrueFalse(false), false},
		{"json bytes", json.RawMessage(`false`), TrueFalse(false), false},
		{"nil", nil, nil, false},
		{"two", 2, nil, true},
		{"yes", "yes", nil, true},
		{"empty string", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tfItem, tt.raw)
			if tt.wantErr {
				if !errors.Is(err, model.ErrMalformedAnswer) {
					t.Fatalf("expected ErrMalformedAnswer, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		item model.ExamItem
		raw  any
		want Text
	}{
		{"string", essayItem, "hello", "hello"},
		{"nil is empty", essayItem, nil, ""},
		{"json null is empty", essayItem, json.RawMessage(`null`), ""},
		{"number is stringified", model.ExamItem{Type: model.ItemShortAnswer}, float64(42), "42"},
		{"bool is stringified", model.ExamItem{Type: model.ItemFillBlank}, true, "true"},
		{"json string", essayItem, json.RawMessage(`"a \"quoted\" word"`), `a "quoted" word`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.item, tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeMatching(t *testing.T) {
	want := Matching{{Left: "cat", Right: "meow"}, {Left: "dog", Right: "moo"}}

	tests := []struct {
		name string
		raw  any
		want Matching
	}{
		{"json string", `[{"left":"cat","right":"meow"},{"left":"dog","right":"moo"}]`, want},
		{"parsed array", []any{
			map[string]any{"left": "cat", "right": "meow"},
			map[string]any{"left": "dog", "right": "moo"},
		}, want},
		{"json bytes", json.RawMessage(`[{"left":"cat","right":"meow"},{"left":"dog","right":"moo"}]`), want},
		{"index encoding", []any{float64(0), float64(1)}, want},
		{"index encoding as json string", `[0,1]`, want},
		{"index encoding skips unmatched", []any{nil, float64(0), float64(9)}, Matching{{Left: "dog", Right: "meow"}}},
		{"malformed json", `[{"left":`, Matching{}},
		{"empty array", `[]`, Matching{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(matchingItem, tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			m, ok := got.(Matching)
			if !ok {
				t.Fatalf("expected Matching, got %T", got)
			}
			if !Equal(m, tt.want) {
				t.Errorf("Normalize() = %v, want %v", m, tt.want)
			}
		})
	}

	// Students pick from the displayed column; the server decodes with the key.
	view, _ := model.Exam{Items: []model.ExamItem{matchingItem}}.StudentView().Item("q4")
	fromView, _ := Normalize(view, []int{0, 2, 1})
	fromKey, _ := Normalize(matchingItem, []int{0, 2, 1})
	if !Equal(fromView, fromKey) {
		t.Errorf("index picks decode differently: view %v, key %v", fromView, fromKey)
	}
	if want := (Matching{{Left: "cat", Right: "meow"}, {Left: "dog", Right: "woof"}, {Left: "cow", Right: "moo"}}); !Equal(fromKey, want) {
		t.Errorf("displayed picks = %v, want %v", fromKey, want)
	}

	if _, err := Normalize(matchingItem, float64(3)); !errors.Is(err, model.ErrMalformedAnswer) {
		t.Errorf("expected ErrMalformedAnswer for a number, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		item model.ExamItem
		v    Value
	}{
		{"mcq first", mcqItem, MCQ(0)},
		{"mcq last", mcqItem, MCQ(2)},
		{"true", tfItem, TrueFalse(true)},
		{"false", tfItem, TrueFalse(false)},
		{"text", essayItem, Text("the mitochondria")},
		{"empty text", essayItem, Text("")},
		{"matching", matchingItem, Matching{{Left: "x", Right: "y"}, {Left: "cat", Right: "woof"}}},
		{"empty matching", matchingItem, Matching{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.item, Denormalize(tt.v))
			if err != nil {
				t.Fatalf("Normalize(Denormalize): %v", err)
			}
			if !Equal(got, tt.v) {
				t.Errorf("in memory: got %v, want %v", got, tt.v)
			}

			b, err := Marshal(tt.v)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			got, err = Normalize(tt.item, b)
			if err != nil {
				t.Fatalf("Normalize(Marshal): %v", err)
			}
			if !Equal(got, tt.v) {
				t.Errorf("over json: got %v, want %v", got, tt.v)
			}
		})
	}
}

func TestFits(t *testing.T) {
	if !Fits(Text("x"), model.ItemFillBlank) {
		t.Error("text should fit fillblank")
	}
	if Fits(MCQ(1), model.ItemTrueFalse) {
		t.Error("mcq should not fit truefalse")
	}
	if Fits(nil, model.ItemMCQ) {
		t.Error("nil should not fit")
	}
}
