package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// itemPayload is the type-specific part of an item, stored as JSON.
type itemPayload struct {
	Options        []model.Option    `json:"options,omitempty"`
	Pairs          []model.MatchPair `json:"pairs,omitempty"`
	AnswerKey      *bool             `json:"answer_key,omitempty"`
	ExpectedAnswer string            `json:"expected_answer,omitempty"`
	Rubric         string            `json:"rubric,omitempty"`
}

// CreateExam inserts an exam with its items. Missing IDs are generated and
// the total points are recomputed from the items.
func (s *Store) CreateExam(ctx context.Context, e model.Exam) (model.Exam, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.ExamDraft
	}
	e.CreatedAt = s.now()
	e.TotalPoints = 0
	for i := range e.Items {
		it := &e.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.ExamID = e.ID
		it.Position = i + 1
		e.TotalPoints += it.Points
	}
	sections, err := json.Marshal(e.Sections)
	if err != nil {
		return model.Exam{}, fmt.Errorf("encode sections: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Exam{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(
		`INSERT INTO exams (id, title, description, starts_at, ends_at, duration_minutes, status, year, sections, total_points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.Title, e.Description, e.StartsAt, e.EndsAt, e.DurationMinutes, e.Status, e.Year, string(sections), e.TotalPoints, e.CreatedAt,
	)
	if err != nil {
		return model.Exam{}, fmt.Errorf("insert exam: %w", err)
	}
	for _, it := range e.Items {
		payload, err := json.Marshal(itemPayload{
			Options:        it.Options,
			Pairs:          it.Pairs,
			AnswerKey:      it.AnswerKey,
			ExpectedAnswer: it.ExpectedAnswer,
			Rubric:         it.Rubric,
		})
		if err != nil {
			return model.Exam{}, fmt.Errorf("encode item %s: %w", it.ID, err)
		}
		_, err = tx.ExecContext(ctx, s.q(
			`INSERT INTO exam_items (id, exam_id, position, type, question, points, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			it.ID, e.ID, it.Position, it.Type, it.Question, it.Points, string(payload),
		)
		if err != nil {
			return model.Exam{}, fmt.Errorf("insert item %s: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Exam{}, err
	}
	return e, nil
}

const examColumns = `id, title, description, starts_at, ends_at, duration_minutes, status, year, sections, total_points, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExamMeta(r rowScanner) (model.ExamMeta, error) {
	var m model.ExamMeta
	var startsAt, endsAt sql.NullTime
	var sections string
	err := r.Scan(&m.ID, &m.Title, &m.Description, &startsAt, &endsAt, &m.DurationMinutes,
		&m.Status, &m.Year, &sections, &m.TotalPoints, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	if startsAt.Valid {
		m.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		m.EndsAt = &endsAt.Time
	}
	if err := json.Unmarshal([]byte(sections), &m.Sections); err != nil {
		return m, fmt.Errorf("decode sections: %w", err)
	}
	return m, nil
}

// ListExams returns all exams without their items, newest first.
func (s *Store) ListExams(ctx context.Context) ([]model.ExamMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.ExamMeta
	for rows.Next() {
		m, err := scanExamMeta(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, m)
	}
	return exams, rows.Err()
}

// GetExam returns an exam with its items in order.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	return s.getExam(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getExam(ctx context.Context, db querier, id string) (model.Exam, error) {
	meta, err := scanExamMeta(db.QueryRowContext(ctx, s.q(`SELECT `+examColumns+` FROM exams WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Exam{}, err
	}
	items, err := s.listItems(ctx, db, id)
	if err != nil {
		return model.Exam{}, err
	}
	return model.Exam{ExamMeta: meta, Items: items}, nil
}

func (s *Store) listItems(ctx context.Context, db querier, examID string) ([]model.ExamItem, error) {
	rows, err := db.QueryContext(ctx, s.q(
		`SELECT id, exam_id, position, type, question, points, payload
		 FROM exam_items WHERE exam_id = ? ORDER BY position`), examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.ExamItem
	for rows.Next() {
		var it model.ExamItem
		var payload string
		if err := rows.Scan(&it.ID, &it.ExamID, &it.Position, &it.Type, &it.Question, &it.Points, &payload); err != nil {
			return nil, err
		}
		var p itemPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", it.ID, err)
		}
		it.Options, it.Pairs, it.AnswerKey, it.ExpectedAnswer, it.Rubric = p.Options, p.Pairs, p.AnswerKey, p.ExpectedAnswer, p.Rubric
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetExamStatus changes the publication status of an exam.
func (s *Store) SetExamStatus(ctx context.Context, id string, status model.ExamStatus) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE exams SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exam %s: %w", id, model.ErrNotFound)
	}
	return nil
}
