package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/grading"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

const attemptColumns = `id, exam_id, user_id, started_at, submitted_at, total_points`

func scanAttempt(r rowScanner) (model.Attempt, error) {
	var a model.Attempt
	var submittedAt sql.NullTime
	if err := r.Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &submittedAt, &a.TotalPoints); err != nil {
		return a, err
	}
	if submittedAt.Valid {
		a.SubmittedAt = &submittedAt.Time
	}
	return a, nil
}

// EnsureAttempt returns the user's in-progress attempt at the exam. Without
// one it returns the latest submitted attempt, and only when the user never
// attempted the exam does it create a new attempt.
func (s *Store) EnsureAttempt(ctx context.Context, examID, userID string) (model.Attempt, error) {
	exam, err := s.getExam(ctx, s.db, examID)
	if err != nil {
		return model.Attempt{}, err
	}
	if a, err := s.openAttempt(ctx, examID, userID); err == nil {
		return a, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, err
	}

	last, err := scanAttempt(s.db.QueryRowContext(ctx, s.q(
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = ? AND user_id = ? AND submitted_at IS NOT NULL
		 ORDER BY submitted_at DESC LIMIT 1`), examID, userID))
	if err == nil {
		return last, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, err
	}

	if !exam.Status.Takeable() {
		return model.Attempt{}, fmt.Errorf("exam %s is %s: %w", examID, exam.Status, model.ErrInactiveExam)
	}
	a := model.Attempt{
		ID:          uuid.NewString(),
		ExamID:      examID,
		UserID:      userID,
		StartedAt:   s.now(),
		TotalPoints: exam.TotalPoints,
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO attempts (id, exam_id, user_id, started_at, total_points) VALUES (?, ?, ?, ?, ?)`),
		a.ID, a.ExamID, a.UserID, a.StartedAt, a.TotalPoints)
	if err != nil {
		// A concurrent request may have created it first.
		if existing, qerr := s.openAttempt(ctx, examID, userID); qerr == nil {
			return existing, nil
		}
		return model.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	slog.Info("attempt started", "attempt_id", a.ID, "exam_id", examID, "user_id", userID)
	return a, nil
}

func (s *Store) openAttempt(ctx context.Context, examID, userID string) (model.Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx, s.q(
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = ? AND user_id = ? AND submitted_at IS NULL`), examID, userID))
}

// GetAttempt returns an attempt with its answers in item order.
func (s *Store) GetAttempt(ctx context.Context, id string) (model.AttemptDetail, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, s.q(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttemptDetail{}, fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.AttemptDetail{}, err
	}
	answers, err := s.listAnswers(ctx, s.db, id)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	return model.AttemptDetail{Attempt: a, Answers: answers}, nil
}

func (s *Store) listAnswers(ctx context.Context, db querier, attemptID string) ([]model.AnswerRow, error) {
	rows, err := db.QueryContext(ctx, s.q(
		`SELECT a.attempt_id, a.item_id, a.item_type, a.value, a.points_awarded, a.updated_at
		 FROM answers a
		 JOIN attempts t ON t.id = a.attempt_id
		 JOIN exam_items i ON i.exam_id = t.exam_id AND i.id = a.item_id
		 WHERE a.attempt_id = ? ORDER BY i.position`), attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnswerRow
	for rows.Next() {
		var r model.AnswerRow
		var value string
		var points sql.NullFloat64
		if err := rows.Scan(&r.AttemptID, &r.ItemID, &r.ItemType, &value, &points, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Value = []byte(value)
		if points.Valid {
			r.PointsAwarded = &points.Float64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertAnswer creates or replaces the answer to one item. The value is
// normalized for the item's type before it is stored.
func (s *Store) UpsertAnswer(ctx context.Context, row model.AnswerRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a, err := scanAttempt(tx.QueryRowContext(ctx, s.q(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`), row.AttemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("attempt %s: %w", row.AttemptID, model.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if a.Submitted() {
		return fmt.Errorf("attempt %s: %w", a.ID, model.ErrImmutableAttempt)
	}

	items, err := s.listItems(ctx, tx, a.ExamID)
	if err != nil {
		return err
	}
	item, ok := model.Exam{Items: items}.Item(row.ItemID)
	if !ok {
		return fmt.Errorf("item %s: %w", row.ItemID, model.ErrUnknownItem)
	}
	if row.ItemType != "" && row.ItemType != item.Type {
		return fmt.Errorf("item %s is %s, not %s: %w", item.ID, item.Type, row.ItemType, model.ErrMalformedAnswer)
	}
	v, err := answer.Normalize(item, row.Value)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("item %s: empty value: %w", item.ID, model.ErrMalformedAnswer)
	}
	value, err := answer.Marshal(v)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.q(
		`INSERT INTO answers (attempt_id, item_id, item_type, value, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (attempt_id, item_id) DO UPDATE SET
			item_type = excluded.item_type,
			value = excluded.value,
			updated_at = excluded.updated_at`),
		a.ID, item.ID, item.Type, string(value), s.now())
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return tx.Commit()
}

// SubmitAttempt marks the attempt submitted and scores its objective
// answers. Submitting a submitted attempt returns it unchanged.
func (s *Store) SubmitAttempt(ctx context.Context, id string) (model.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Attempt{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(
		`UPDATE attempts SET submitted_at = ? WHERE id = ? AND submitted_at IS NULL`), s.now(), id)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("submit attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Attempt{}, err
	}

	a, err := scanAttempt(tx.QueryRowContext(ctx, s.q(`SELECT `+attemptColumns+` FROM attempts WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, fmt.Errorf("attempt %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Attempt{}, err
	}
	if n == 0 {
		return a, nil
	}

	if err := s.autoScore(ctx, tx, a); err != nil {
		return model.Attempt{}, fmt.Errorf("score attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Attempt{}, err
	}
	slog.Info("attempt submitted", "attempt_id", id, "exam_id", a.ExamID, "user_id", a.UserID)
	return a, nil
}

func (s *Store) autoScore(ctx context.Context, tx *sql.Tx, a model.Attempt) error {
	items, err := s.listItems(ctx, tx, a.ExamID)
	if err != nil {
		return err
	}
	exam := model.Exam{Items: items}
	rows, err := s.listAnswers(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		item, ok := exam.Item(r.ItemID)
		if !ok {
			continue
		}
		points, ok := grading.ScoreRow(item, r.Value)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.q(
			`UPDATE answers SET points_awarded = ? WHERE attempt_id = ? AND item_id = ?`),
			points, a.ID, r.ItemID); err != nil {
			return err
		}
	}
	return nil
}

// AwardPoints records the teacher's score for one answer of a submitted
// attempt.
func (s *Store) AwardPoints(ctx context.Context, attemptID, itemID string, points float64) error {
	detail, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if !detail.Submitted() {
		return fmt.Errorf("attempt %s is still in progress: %w", attemptID, model.ErrInvalid)
	}
	exam, err := s.GetExam(ctx, detail.ExamID)
	if err != nil {
		return err
	}
	item, ok := exam.Item(itemID)
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, model.ErrUnknownItem)
	}
	if points < 0 || points > float64(item.Points) {
		return fmt.Errorf("points %v outside 0-%d: %w", points, item.Points, model.ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE answers SET points_awarded = ? WHERE attempt_id = ? AND item_id = ?`), points, attemptID, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("answer %s/%s: %w", attemptID, itemID, model.ErrNotFound)
	}
	return nil
}

// ListAttemptsByExam returns every attempt at an exam, oldest first.
func (s *Store) ListAttemptsByExam(ctx context.Context, examID string) ([]model.AttemptSummary, error) {
	return s.listSummaries(ctx, `t.exam_id = ?`, examID)
}

// ListAttemptsByUser returns a user's attempts across exams, oldest first.
func (s *Store) ListAttemptsByUser(ctx context.Context, userID string) ([]model.AttemptSummary, error) {
	return s.listSummaries(ctx, `t.user_id = ?`, userID)
}

func (s *Store) listSummaries(ctx context.Context, where string, arg string) ([]model.AttemptSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT t.id, t.exam_id, t.user_id, t.started_at, t.submitted_at, t.total_points,
			e.title, u.username, u.display_name,
			COUNT(a.item_id), COALESCE(SUM(a.points_awarded), 0),
			SUM(CASE WHEN a.item_id IS NOT NULL AND a.points_awarded IS NULL THEN 1 ELSE 0 END)
		 FROM attempts t
		 JOIN exams e ON e.id = t.exam_id
		 JOIN users u ON u.id = t.user_id
		 LEFT JOIN answers a ON a.attempt_id = t.id
		 WHERE `+where+`
		 GROUP BY t.id, t.exam_id, t.user_id, t.started_at, t.submitted_at, t.total_points, e.title, u.username, u.display_name
		 ORDER BY t.started_at, t.id`), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptSummary
	for rows.Next() {
		var sum model.AttemptSummary
		var submittedAt sql.NullTime
		var ungraded int
		if err := rows.Scan(&sum.ID, &sum.ExamID, &sum.UserID, &sum.StartedAt, &submittedAt, &sum.TotalPoints,
			&sum.ExamTitle, &sum.Username, &sum.DisplayName, &sum.Answered, &sum.Score, &ungraded); err != nil {
			return nil, err
		}
		if submittedAt.Valid {
			sum.SubmittedAt = &submittedAt.Time
		}
		sum.FullyGraded = sum.Submitted() && ungraded == 0
		out = append(out, sum)
	}
	return out, rows.Err()
}
