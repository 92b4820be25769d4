package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its validate struct tags. Failures wrap ErrInvalid.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q: %w", fe.Namespace(), fe.Tag(), ErrInvalid)
		}
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	return nil
}

// ValidateExam checks an exam before it is stored: field tags, unique item
// IDs and the answer data each item type needs.
func ValidateExam(e Exam) error {
	if err := Validate(e); err != nil {
		return err
	}
	if e.Timed() && e.EndsAt != nil && e.StartsAt != nil && !e.EndsAt.After(*e.StartsAt) {
		return fmt.Errorf("exam ends before it starts: %w", ErrInvalid)
	}
	seen := make(map[string]bool, len(e.Items))
	for i, it := range e.Items {
		if it.ID != "" {
			if seen[it.ID] {
				return fmt.Errorf("item %s appears twice: %w", it.ID, ErrInvalid)
			}
			seen[it.ID] = true
		}
		switch it.Type {
		case ItemMCQ:
			if len(it.Options) < 2 {
				return fmt.Errorf("item %d: mcq needs at least two options: %w", i+1, ErrInvalid)
			}
		case ItemTrueFalse:
			if it.AnswerKey == nil {
				return fmt.Errorf("item %d: truefalse needs an answer key: %w", i+1, ErrInvalid)
			}
		case ItemMatching:
			if len(it.Pairs) == 0 {
				return fmt.Errorf("item %d: matching needs pairs: %w", i+1, ErrInvalid)
			}
		}
	}
	return nil
}

// ToExam returns the exam to store. A key, when present, becomes the exam ID
// so re-imports of the same file address the same exam.
func (i ExamImport) ToExam() Exam {
	e := i.Exam
	if e.ID == "" && i.Key != "" {
		e.ID = i.Key
	}
	return e
}
