package model

import (
	"context"
	"encoding/json"
	"slices"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
)

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Year         string    `json:"year,omitempty"`
	Section      string    `json:"section,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ExamStatus represents the publication status of an exam.
type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamActive    ExamStatus = "active"
	ExamArchived  ExamStatus = "archived"
)

// Takeable reports whether students may start or continue attempts.
func (s ExamStatus) Takeable() bool {
	return s == ExamActive || s == ExamPublished
}

// ItemType is the kind of question an exam item asks.
type ItemType string

const (
	ItemMCQ         ItemType = "mcq"
	ItemTrueFalse   ItemType = "truefalse"
	ItemEssay       ItemType = "essay"
	ItemShortAnswer ItemType = "shortanswer"
	ItemFillBlank   ItemType = "fillblank"
	ItemMatching    ItemType = "matching"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemMCQ, ItemTrueFalse, ItemEssay, ItemShortAnswer, ItemFillBlank, ItemMatching:
		return true
	}
	return false
}

// FreeText reports whether answers of this type are typed text.
// Free-text answers are persisted with a debounce.
func (t ItemType) FreeText() bool {
	return t == ItemEssay || t == ItemShortAnswer || t == ItemFillBlank
}

// ExamMeta describes an exam without its items.
type ExamMeta struct {
	ID              string     `json:"id"`
	Title           string     `json:"title" validate:"required"`
	Description     string     `json:"description,omitempty"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty" validate:"gte=0"`
	Status          ExamStatus `json:"status" validate:"omitempty,oneof=draft published active archived"`
	Year            string     `json:"year,omitempty"`
	Sections        []string   `json:"sections,omitempty"`
	TotalPoints     int        `json:"total_points"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Timed reports whether the exam has any expiration policy.
func (m ExamMeta) Timed() bool {
	return m.DurationMinutes > 0 || m.EndsAt != nil
}

// Option is one choice of a multiple-choice item.
type Option struct {
	Text    string `json:"text" validate:"required"`
	Correct bool   `json:"correct,omitempty"`
}

// MatchPair is a left/right pair of a matching item or a matching answer.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// ExamItem is a single question within an exam.
type ExamItem struct {
	ID             string      `json:"id"`
	ExamID         string      `json:"exam_id"`
	Position       int         `json:"position"`
	Type           ItemType    `json:"type" validate:"required,oneof=mcq truefalse essay shortanswer fillblank matching"`
	Question       string      `json:"question" validate:"required"`
	Points         int         `json:"points" validate:"gte=0"`
	Options        []Option    `json:"options,omitempty" validate:"dive"`
	Pairs          []MatchPair `json:"pairs,omitempty"`
	AnswerKey      *bool       `json:"answer_key,omitempty"`
	ExpectedAnswer string      `json:"expected_answer,omitempty"`
	Rubric         string      `json:"rubric,omitempty"`
}

// DisplayRights returns the right-hand choices of a matching item in the
// order students see them. Index-form matching answers refer to this order.
func (it ExamItem) DisplayRights() []string {
	out := make([]string, 0, len(it.Pairs))
	for _, p := range it.Pairs {
		out = append(out, p.Right)
	}
	slices.Sort(out)
	return out
}

// Exam is an exam with its ordered items.
type Exam struct {
	ExamMeta
	Items []ExamItem `json:"items" validate:"dive"`
}

// StudentView returns a copy of the exam with every answer key removed.
func (e Exam) StudentView() Exam {
	out := e
	out.Items = make([]ExamItem, len(e.Items))
	for i, it := range e.Items {
		it.AnswerKey = nil
		it.ExpectedAnswer = ""
		it.Rubric = ""
		if it.Options != nil {
			opts := make([]Option, len(it.Options))
			for j, o := range it.Options {
				opts[j] = Option{Text: o.Text}
			}
			it.Options = opts
		}
		if it.Pairs != nil {
			it.Pairs = scramblePairs(it)
		}
		out.Items[i] = it
	}
	return out
}

// scramblePairs keeps the left column and lists the right column in sorted
// order, so the pairing no longer reveals the key.
func scramblePairs(it ExamItem) []MatchPair {
	rights := it.DisplayRights()
	out := make([]MatchPair, len(it.Pairs))
	for i, p := range it.Pairs {
		out[i] = MatchPair{Left: p.Left, Right: rights[i]}
	}
	return out
}

// Item returns the item with the given ID.
func (e Exam) Item(id string) (ExamItem, bool) {
	for _, it := range e.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ExamItem{}, false
}

// Attempt is one student's instance of taking one exam.
type Attempt struct {
	ID          string     `json:"id"`
	ExamID      string     `json:"exam_id"`
	UserID      string     `json:"user_id"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	TotalPoints int        `json:"total_points"`
}

// Submitted reports whether the attempt is terminal.
func (a Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// AnswerRow is the persisted answer to one item of an attempt.
// Value holds the wire representation.
type AnswerRow struct {
	AttemptID     string          `json:"attempt_id"`
	ItemID        string          `json:"item_id"`
	ItemType      ItemType        `json:"item_type"`
	Value         json.RawMessage `json:"value"`
	PointsAwarded *float64        `json:"points_awarded,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AttemptDetail is an attempt together with its answers.
type AttemptDetail struct {
	Attempt
	Answers []AnswerRow `json:"answers"`
}

// Score sums the awarded points of all graded answers.
func (d AttemptDetail) Score() (score float64, graded bool) {
	graded = true
	for _, a := range d.Answers {
		if a.PointsAwarded == nil {
			graded = false
			continue
		}
		score += *a.PointsAwarded
	}
	return score, graded
}

// AttemptSummary is an attempt as listed for monitoring and history.
type AttemptSummary struct {
	Attempt
	ExamTitle   string  `json:"exam_title"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Answered    int     `json:"answered"`
	Score       float64 `json:"score"`
	FullyGraded bool    `json:"fully_graded"`
}

// ExamImport is used for loading exams from JSON.
type ExamImport struct {
	Exam
	Key string `json:"key,omitempty"`
}
