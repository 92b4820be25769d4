package store

import (
	"context"
	"fmt"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// ExportExam builds export-ready results of every attempt at an exam.
func (s *Store) ExportExam(ctx context.Context, examID string) (model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, err
	}
	attempts, err := s.ListAttemptsByExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list attempts: %w", err)
	}

	// Track attempt count per student for attempt_number.
	attemptCount := make(map[string]int)

	results := make([]model.StudentResult, 0, len(attempts))
	for _, sum := range attempts {
		attemptCount[sum.UserID]++

		detail, err := s.GetAttempt(ctx, sum.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("get attempt %s: %w", sum.ID, err)
		}
		byItem := make(map[string]model.AnswerRow, len(detail.Answers))
		for _, r := range detail.Answers {
			byItem[r.ItemID] = r
		}

		items := make([]model.ItemResult, 0, len(exam.Items))
		for _, it := range exam.Items {
			ir := model.ItemResult{ItemID: it.ID, Type: it.Type, Question: it.Question, Points: it.Points}
			if r, ok := byItem[it.ID]; ok {
				if v, err := answer.Normalize(it, r.Value); err == nil && v != nil {
					ir.Answer = answer.Denormalize(v)
					ir.Answered = true
				}
				ir.PointsAwarded = r.PointsAwarded
			}
			items = append(items, ir)
		}

		score, graded := detail.Score()
		results = append(results, model.StudentResult{
			Username:      sum.Username,
			DisplayName:   sum.DisplayName,
			AttemptNumber: attemptCount[sum.UserID],
			StartedAt:     sum.StartedAt,
			SubmittedAt:   sum.SubmittedAt,
			Items:         items,
			Score:         score,
			FullyGraded:   graded && sum.Submitted(),
		})
	}

	return model.ExamExport{
		ExamID:      exam.ID,
		Title:       exam.Title,
		ExportedAt:  s.now(),
		NumItems:    len(exam.Items),
		TotalPoints: exam.TotalPoints,
		Results:     results,
	}, nil
}
