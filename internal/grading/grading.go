// Package grading awards points for objective items when an attempt is
// submitted. Essays, and items without an answer key, are left for the
// teacher.
package grading

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Score returns the points v earns on item. ok is false when the item
// cannot be scored automatically.
func Score(item model.ExamItem, v answer.Value) (points float64, ok bool) {
	if !Gradable(item) {
		return 0, false
	}
	if v == nil || !answer.Fits(v, item.Type) {
		return 0, true
	}
	full := float64(item.Points)

	switch x := v.(type) {
	case answer.MCQ:
		i := int(x)
		if i >= 0 && i < len(item.Options) && item.Options[i].Correct {
			return full, true
		}
	case answer.TrueFalse:
		if bool(x) == *item.AnswerKey {
			return full, true
		}
	case answer.Text:
		if sameText(string(x), item.ExpectedAnswer) {
			return full, true
		}
	case answer.Matching:
		if matchesAll(item.Pairs, x) {
			return full, true
		}
	}
	return 0, true
}

// ScoreRow normalizes a stored value and scores it. A value that cannot be
// normalized earns nothing.
func ScoreRow(item model.ExamItem, raw json.RawMessage) (float64, bool) {
	v, err := answer.Normalize(item, raw)
	if err != nil {
		v = nil
	}
	return Score(item, v)
}

// Gradable reports whether item carries enough of a key to be scored
// without a teacher.
func Gradable(item model.ExamItem) bool {
	switch item.Type {
	case model.ItemMCQ:
		for _, o := range item.Options {
			if o.Correct {
				return true
			}
		}
		return false
	case model.ItemTrueFalse:
		return item.AnswerKey != nil
	case model.ItemShortAnswer, model.ItemFillBlank:
		return strings.TrimSpace(item.ExpectedAnswer) != ""
	case model.ItemMatching:
		return len(item.Pairs) > 0
	}
	return false
}

func sameText(got, want string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(got)) == fold.String(strings.TrimSpace(want))
}

// matchesAll reports whether the answer pairs every left item with its key.
func matchesAll(key []model.MatchPair, got answer.Matching) bool {
	if len(got) != len(key) {
		return false
	}
	want := make(map[string]string, len(key))
	for _, p := range key {
		want[p.Left] = p.Right
	}
	seen := make(map[string]bool, len(got))
	for _, p := range got {
		r, ok := want[p.Left]
		if !ok || r != p.Right || seen[p.Left] {
			return false
		}
		seen[p.Left] = true
	}
	return true
}
