package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/llm"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/metrics"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/store"
)

const maxBodyBytes = 1 << 20

// ExamSource loads exams with their items.
type ExamSource interface {
	GetExam(ctx context.Context, id string) (model.Exam, error)
}

// ExamInvalidator drops cached copies of an exam after it changes.
type ExamInvalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// Suggester proposes scores for free-text answers.
type Suggester interface {
	SuggestScore(ctx context.Context, item model.ExamItem, answer string) (*llm.Suggestion, error)
}

// Options configures a Handler. Zero values disable the optional parts.
type Options struct {
	// Exams overrides where exams are read from, e.g. a cache.
	Exams       ExamSource
	Invalidator ExamInvalidator
	LLM         Suggester
	Metrics     *metrics.Metrics

	AllowedOrigins []string
	SecureCookies  bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	exams   ExamSource
	inval   ExamInvalidator
	llm     Suggester
	metrics *metrics.Metrics
	opts    Options
}

// New creates a new Handler.
func New(s *store.Store, opts Options) *Handler {
	h := &Handler{
		store:   s,
		exams:   opts.Exams,
		inval:   opts.Invalidator,
		llm:     opts.LLM,
		metrics: opts.Metrics,
		opts:    opts,
	}
	if h.exams == nil {
		h.exams = s
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	if len(h.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(h.metrics.Middleware)

	r.Handle("/metrics", h.metrics.Handler())
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)

		r.Get("/api/exams", h.handleListExams)
		r.Get("/api/exams/{examID}", h.handleGetExam)
		r.Post("/api/exams/{examID}/attempts", h.handleEnsureAttempt)

		r.Get("/api/attempts", h.handleListMyAttempts)
		r.Get("/api/attempts/{attemptID}", h.handleGetAttempt)
		r.Put("/api/attempts/{attemptID}/answers/{itemID}", h.handleUpsertAnswer)
		r.Post("/api/attempts/{attemptID}/submit", h.handleSubmit)
		r.Get("/attempts/{attemptID}/result", h.handleResultPage)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher))

			r.Post("/api/exams", h.handleImportExam)
			r.Patch("/api/exams/{examID}/status", h.handleSetExamStatus)
			r.Get("/api/exams/{examID}/attempts", h.handleListExamAttempts)
			r.Get("/api/exams/{examID}/export", h.handleExportExam)
			r.Put("/api/attempts/{attemptID}/answers/{itemID}/points", h.handleAwardPoints)
			r.Post("/api/attempts/{attemptID}/answers/{itemID}/suggest", h.handleSuggestScore)

			r.Get("/api/users", h.handleListUsers)
			r.Post("/api/users", h.handleCreateUser)
			r.Post("/api/users/{userID}/toggle-active", h.handleToggleUserActive)
		})
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "already_submitted", "immutable_attempt":
		return http.StatusConflict
	case "inactive_exam", "forbidden":
		return http.StatusForbidden
	case "malformed_answer", "unknown_item", "invalid":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.ErrorCode(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	} else if errors.Is(err, model.ErrImmutableAttempt) {
		slog.Warn("write to submitted attempt", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// decodeJSON reads a JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, model.ErrInvalid)
	}
	return model.Validate(v)
}
