package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/handler"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/session"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/store"
)

type fixture struct {
	srv   *httptest.Server
	store *store.Store
	exam  model.Exam
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, name := range []string{"juan", "maria"} {
		hash, err := bcrypt.GenerateFromPassword([]byte(name+"-pw"), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.CreateUser(context.Background(), model.User{
			Username: name, DisplayName: name, PasswordHash: string(hash), Role: model.UserRoleStudent, Active: true,
		}); err != nil {
			t.Fatal(err)
		}
	}

	exam, err := s.CreateExam(context.Background(), model.Exam{
		ExamMeta: model.ExamMeta{Title: "Quiz", Status: model.ExamActive, DurationMinutes: 30},
		Items: []model.ExamItem{
			{ID: "q1", Type: model.ItemMCQ, Question: "Largest planet?", Points: 2, Options: []model.Option{
				{Text: "Mars"}, {Text: "Jupiter", Correct: true},
			}},
			{ID: "q2", Type: model.ItemEssay, Question: "Explain tides.", Points: 5},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	handler.New(s, handler.Options{}).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: s, exam: exam}
}

func (f *fixture) client(t *testing.T, username string) (*Client, *model.User) {
	t.Helper()
	c, err := New(f.srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	u, err := c.Login(context.Background(), username, username+"-pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return c, u
}

func TestSessionOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, u := f.client(t, "juan")

	sess := session.New(c, session.Options{Debounce: time.Hour})
	t.Cleanup(func() { sess.Close(context.Background()) })
	if err := sess.Open(ctx, f.exam.ID, u.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := sess.State(); got != session.StateActive {
		t.Fatalf("state = %s, want active", got)
	}
	if _, ok := sess.Remaining(); !ok {
		t.Error("timed exam should report remaining time")
	}

	if err := sess.RecordAnswer(ctx, "q1", 1); err != nil {
		t.Fatalf("record mcq: %v", err)
	}
	if err := sess.RecordAnswer(ctx, "q2", "The moon pulls the sea."); err != nil {
		t.Fatalf("record essay: %v", err)
	}
	if sess.Pending() != 1 {
		t.Errorf("pending = %d, want the debounced essay", sess.Pending())
	}

	att, err := sess.Submit(ctx, session.ReasonManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !att.Submitted() {
		t.Fatal("attempt not submitted")
	}

	d, err := f.store.GetAttempt(ctx, att.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Answers) != 2 {
		t.Fatalf("server has %d answers, want 2", len(d.Answers))
	}
	if p := d.Answers[0].PointsAwarded; p == nil || *p != 2 {
		t.Errorf("q1 points = %v, want 2", p)
	}

	again := session.New(c, session.Options{})
	t.Cleanup(func() { again.Close(context.Background()) })
	if err := again.Open(ctx, f.exam.ID, u.ID); !errors.Is(err, model.ErrAlreadySubmitted) {
		t.Errorf("reopen err = %v, want ErrAlreadySubmitted", err)
	}
	if got := again.State(); got != session.StateBlockedSubmitted {
		t.Errorf("reopen state = %s", got)
	}
}

func TestErrorCodesMapToModelErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	anon, err := New(f.srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := anon.GetExamMeta(ctx, f.exam.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("anonymous get = %v, want ErrUnauthorized", err)
	}
	if _, err := anon.Login(ctx, "juan", "nope"); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("bad login = %v, want ErrUnauthorized", err)
	}

	c, _ := f.client(t, "juan")
	if _, err := c.GetExamMeta(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing exam = %v, want ErrNotFound", err)
	}

	a, err := c.EnsureAttempt(ctx, f.exam.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	err = c.UpsertAnswer(ctx, model.AnswerRow{AttemptID: a.ID, ItemID: "zz", Value: []byte(`1`)})
	if !errors.Is(err, model.ErrUnknownItem) {
		t.Errorf("unknown item = %v", err)
	}
	err = c.UpsertAnswer(ctx, model.AnswerRow{AttemptID: a.ID, ItemID: "q1", ItemType: model.ItemMCQ, Value: []byte(`7`)})
	if !errors.Is(err, model.ErrMalformedAnswer) {
		t.Errorf("out of range option = %v", err)
	}

	other, _ := f.client(t, "maria")
	if _, err := other.GetAttempt(ctx, a.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("foreign attempt = %v, want ErrForbidden", err)
	}

	if _, err := c.SubmitAttempt(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	err = c.UpsertAnswer(ctx, model.AnswerRow{AttemptID: a.ID, ItemID: "q1", Value: []byte(`0`)})
	if !errors.Is(err, model.ErrImmutableAttempt) {
		t.Errorf("write after submit = %v, want ErrImmutableAttempt", err)
	}
	if model.IsTransient(err) {
		t.Error("client errors must not be transient")
	}
}

func TestTransientFailures(t *testing.T) {
	ctx := context.Background()

	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal","message":"internal error"}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(busy.Close)
	c, err := New(busy.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubmitAttempt(ctx, "a1"); !model.IsTransient(err) {
		t.Errorf("503 = %v, want transient", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	c, err = New(url, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetAttempt(ctx, "a1"); !model.IsTransient(err) {
		t.Errorf("refused connection = %v, want transient", err)
	}
}

func TestHeaders(t *testing.T) {
	var lang, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang, auth = r.Header.Get("Accept-Language"), r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", Options{Language: "fil"})
	if err != nil {
		t.Fatal(err)
	}
	c.SetToken("tok")
	if _, err := c.ListExams(context.Background()); err != nil {
		t.Fatal(err)
	}
	if lang != "fil" || auth != "Bearer tok" {
		t.Errorf("headers = %q, %q", lang, auth)
	}
}

func TestSaveRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, Options{SaveRate: rate.Every(time.Hour), SaveBurst: 1})
	if err != nil {
		t.Fatal(err)
	}
	row := model.AnswerRow{AttemptID: "a1", ItemID: "q1", Value: []byte(`1`)}
	if err := c.UpsertAnswer(context.Background(), row); err != nil {
		t.Fatalf("first save: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.UpsertAnswer(ctx, row); err == nil {
		t.Error("second save should be throttled")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"ftp://exam.local", "exam.local:8080", "http://[::1"} {
		if _, err := New(u, Options{}); err == nil {
			t.Errorf("New(%q) should fail", u)
		}
	}
}
