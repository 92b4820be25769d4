package answer

import (
	"testing"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

func TestFormat(t *testing.T) {
	mcq := model.ExamItem{Type: model.ItemMCQ, Options: []model.Option{{Text: "Mars"}, {Text: "Jupiter"}}}

	tests := []struct {
		name string
		item model.ExamItem
		v    Value
		want string
	}{
		{"nil", mcq, nil, ""},
		{"mcq option text", mcq, MCQ(1), "Jupiter"},
		{"mcq out of range", mcq, MCQ(7), "#7"},
		{"true", model.ExamItem{Type: model.ItemTrueFalse}, TrueFalse(true), "True"},
		{"false", model.ExamItem{Type: model.ItemTrueFalse}, TrueFalse(false), "False"},
		{"text", model.ExamItem{Type: model.ItemEssay}, Text("hello"), "hello"},
		{"matching", model.ExamItem{Type: model.ItemMatching}, Matching{{Left: "H2O", Right: "water"}, {Left: "NaCl", Right: "salt"}}, "H2O -> water; NaCl -> salt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.item, tt.v); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}
