package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

type upsertRequest struct {
	ItemType model.ItemType  `json:"item_type" validate:"omitempty,oneof=mcq truefalse essay shortanswer fillblank matching"`
	Value    json.RawMessage `json:"value" validate:"required"`
}

// visibleTo reports whether a user may see an exam at all. Students only see
// exams for their year and section.
func visibleTo(u *model.User, e model.ExamMeta) bool {
	if u.Role == model.UserRoleTeacher {
		return true
	}
	if e.Year != "" && e.Year != u.Year {
		return false
	}
	return len(e.Sections) == 0 || slices.Contains(e.Sections, u.Section)
}

// openFor reports whether a student may see the exam's items now.
func openFor(e model.ExamMeta, now time.Time) bool {
	return e.Status.Takeable() && (e.StartsAt == nil || !now.Before(*e.StartsAt))
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exams, err := h.store.ListExams(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]model.ExamMeta, 0, len(exams))
	for _, e := range exams {
		if visibleTo(user, e) && (user.Role == model.UserRoleTeacher || e.Status != model.ExamDraft) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	id := chi.URLParam(r, "examID")
	e, err := h.exams.GetExam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visibleTo(user, e.ExamMeta) {
		writeError(w, r, fmt.Errorf("exam %s: %w", id, model.ErrNotFound))
		return
	}
	if user.Role == model.UserRoleTeacher {
		writeJSON(w, http.StatusOK, e)
		return
	}
	view := e.StudentView()
	if !openFor(e.ExamMeta, time.Now()) {
		view.Items = nil
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleEnsureAttempt(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	id := chi.URLParam(r, "examID")
	e, err := h.exams.GetExam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visibleTo(user, e.ExamMeta) {
		writeError(w, r, fmt.Errorf("exam %s: %w", id, model.ErrNotFound))
		return
	}
	if e.StartsAt != nil && time.Now().Before(*e.StartsAt) {
		writeError(w, r, fmt.Errorf("exam %s opens at %s: %w", id, e.StartsAt.Format(time.RFC3339), model.ErrInactiveExam))
		return
	}
	a, err := h.store.EnsureAttempt(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListMyAttempts(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	list, err := h.store.ListAttemptsByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// loadAttempt returns the attempt named in the URL. Owners may always read
// and write it; teachers may only read it.
func (h *Handler) loadAttempt(r *http.Request, write bool) (model.AttemptDetail, error) {
	user := model.UserFromContext(r.Context())
	id := chi.URLParam(r, "attemptID")
	d, err := h.store.GetAttempt(r.Context(), id)
	if err != nil {
		return model.AttemptDetail{}, err
	}
	if d.UserID == user.ID {
		return d, nil
	}
	if !write && user.Role == model.UserRoleTeacher {
		return d, nil
	}
	return model.AttemptDetail{}, fmt.Errorf("attempt %s: %w", id, model.ErrForbidden)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadAttempt(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if d.Answers == nil {
		d.Answers = []model.AnswerRow{}
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleUpsertAnswer(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadAttempt(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req upsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row := model.AnswerRow{
		AttemptID: d.ID,
		ItemID:    chi.URLParam(r, "itemID"),
		ItemType:  req.ItemType,
		Value:     req.Value,
	}
	if err := h.store.UpsertAnswer(r.Context(), row); err != nil {
		writeError(w, r, err)
		return
	}
	label := string(req.ItemType)
	if label == "" {
		label = "unspecified"
	}
	h.metrics.AnswersSaved.WithLabelValues(label).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	d, err := h.loadAttempt(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.store.SubmitAttempt(r.Context(), d.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !d.Submitted() {
		h.metrics.Submissions.Inc()
	}
	writeJSON(w, http.StatusOK, a)
}
