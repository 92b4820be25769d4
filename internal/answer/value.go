// Package answer holds the canonical in-memory answer values of an attempt
// and the conversion between them and their wire representation.
package answer

import (
	"slices"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Value is a canonical answer. It is one of MCQ, TrueFalse, Text or Matching.
type Value interface {
	// Kind reports the item type family the value belongs to.
	Kind() model.ItemType
	isValue()
}

// MCQ is the index of the selected option.
type MCQ int

// TrueFalse is a strict boolean answer.
type TrueFalse bool

// Text is a free-text answer for essay, short-answer and fill-blank items.
type Text string

// Matching is an ordered sequence of left/right pairs.
type Matching []model.MatchPair

func (MCQ) Kind() model.ItemType       { return model.ItemMCQ }
func (TrueFalse) Kind() model.ItemType { return model.ItemTrueFalse }
func (Text) Kind() model.ItemType      { return model.ItemEssay }
func (Matching) Kind() model.ItemType  { return model.ItemMatching }

func (MCQ) isValue()       {}
func (TrueFalse) isValue() {}
func (Text) isValue()      {}
func (Matching) isValue()  {}

// Fits reports whether v is a valid value for items of type t.
func Fits(v Value, t model.ItemType) bool {
	if v == nil {
		return false
	}
	if t.FreeText() {
		_, ok := v.(Text)
		return ok
	}
	return v.Kind() == t
}

// Equal compares two values.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Matching:
		y, ok := b.(Matching)
		return ok && slices.Equal(x, y)
	case nil:
		return b == nil
	default:
		return a == b
	}
}
