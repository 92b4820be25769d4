package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/handler/views"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

func (h *Handler) handleResultPage(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadAttempt(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !d.Submitted() {
		writeError(w, r, fmt.Errorf("attempt %s is still in progress: %w", d.ID, model.ErrInvalid))
		return
	}
	exam, err := h.exams.GetExam(r.Context(), d.ExamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	student, err := h.store.GetUserByID(r.Context(), d.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := resultData(exam, d)
	if student != nil {
		data.Student = student.DisplayName
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func resultData(exam model.Exam, d model.AttemptDetail) views.ResultData {
	byItem := make(map[string]model.AnswerRow, len(d.Answers))
	for _, row := range d.Answers {
		byItem[row.ItemID] = row
	}

	score, graded := d.Score()
	data := views.ResultData{
		ExamTitle:   exam.Title,
		SubmittedAt: d.SubmittedAt,
		Score:       score,
		TotalPoints: d.TotalPoints,
		FullyGraded: graded,
	}
	for _, it := range exam.Items {
		ri := views.ResultItem{Position: it.Position, Question: it.Question, Points: it.Points}
		if row, ok := byItem[it.ID]; ok {
			ri.Awarded = row.PointsAwarded
			if v, err := answer.Normalize(it, row.Value); err == nil && v != nil {
				ri.Answer = answer.Format(it, v)
				ri.Answered = true
			}
		}
		data.Items = append(data.Items, ri)
	}
	return data
}
