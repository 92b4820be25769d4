package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/answer"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

type statusRequest struct {
	Status model.ExamStatus `json:"status" validate:"required,oneof=draft published active archived"`
}

type pointsRequest struct {
	Points *float64 `json:"points" validate:"required"`
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=2,max=64"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password" validate:"required,min=6"`
	Role        model.UserRole `json:"role" validate:"omitempty,oneof=student teacher"`
	Year        string         `json:"year"`
	Section     string         `json:"section"`
}

func (h *Handler) handleImportExam(w http.ResponseWriter, r *http.Request) {
	var imp model.ExamImport
	if err := decodeJSON(w, r, &imp); err != nil {
		writeError(w, r, err)
		return
	}
	exam := imp.ToExam()
	if err := model.ValidateExam(exam); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.CreateExam(r.Context(), exam)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("imported exam via API", "exam_id", created.ID, "items", len(created.Items))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleSetExamStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "examID")
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.SetExamStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, r, err)
		return
	}
	if h.inval != nil {
		if err := h.inval.Invalidate(r.Context(), id); err != nil {
			slog.Warn("exam cache not invalidated", "exam_id", id, "error", err)
		}
	}
	slog.Info("exam status changed", "exam_id", id, "status", req.Status)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListExamAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "examID")
	if _, err := h.exams.GetExam(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.store.ListAttemptsByExam(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleExportExam(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ExportExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *Handler) handleAwardPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	attemptID, itemID := chi.URLParam(r, "attemptID"), chi.URLParam(r, "itemID")
	if err := h.store.AwardPoints(r.Context(), attemptID, itemID, *req.Points); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSuggestScore(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: "score suggestions are not configured"})
		return
	}
	d, err := h.loadAttempt(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	exam, err := h.exams.GetExam(r.Context(), d.ExamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	item, ok := exam.Item(itemID)
	if !ok {
		writeError(w, r, fmt.Errorf("item %s: %w", itemID, model.ErrUnknownItem))
		return
	}

	var text string
	for _, row := range d.Answers {
		if row.ItemID != itemID {
			continue
		}
		v, err := answer.Normalize(item, row.Value)
		if err != nil {
			writeError(w, r, err)
			return
		}
		text = answer.Format(item, v)
	}

	s, err := h.llm.SuggestScore(r.Context(), item, text)
	if err != nil {
		if errors.Is(err, model.ErrInvalid) {
			writeError(w, r, err)
			return
		}
		slog.Error("score suggestion failed", "attempt_id", d.ID, "item_id", itemID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "llm_failed", Message: "score suggestion failed"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, fmt.Errorf("hash password: %w", err))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	if existing, err := h.store.GetUserByUsername(r.Context(), req.Username); err != nil {
		writeError(w, r, err)
		return
	} else if existing != nil {
		writeError(w, r, fmt.Errorf("username %q is taken: %w", req.Username, model.ErrInvalid))
		return
	}

	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Year:         req.Year,
		Section:      req.Section,
		Active:       true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
