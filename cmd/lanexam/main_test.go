package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/client"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/handler"
	appI18n "github.com/ianlabicani/lan-exam-web-sub000/internal/i18n"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/session"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseAnswer(t *testing.T) {
	mcq := model.ExamItem{Type: model.ItemMCQ, Options: []model.Option{{Text: "a"}, {Text: "b"}}}
	tf := model.ExamItem{Type: model.ItemTrueFalse}
	match := model.ExamItem{Type: model.ItemMatching, Pairs: []model.MatchPair{{Left: "x", Right: "1"}, {Left: "y", Right: "2"}}}
	essay := model.ExamItem{Type: model.ItemEssay}

	tests := []struct {
		name    string
		item    model.ExamItem
		input   string
		want    any
		wantErr bool
	}{
		{"mcq is 1-based", mcq, "2", 1, false},
		{"mcq out of range", mcq, "3", nil, true},
		{"mcq not a number", mcq, "b", nil, true},
		{"true", tf, "True", true, false},
		{"filipino false", tf, "mali", false, false},
		{"not a boolean", tf, "maybe", nil, true},
		{"essay keeps text", essay, "  light and water ", "light and water", false},
		{"essay may be empty", essay, "", "", false},
		{"matching count mismatch", match, "1", nil, true},
		{"matching bad number", match, "1 5", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnswer(tt.item, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	got, err := parseAnswer(match, "2, 1")
	if err != nil {
		t.Fatal(err)
	}
	if picks, ok := got.([]int); !ok || len(picks) != 2 || picks[0] != 1 || picks[1] != 0 {
		t.Errorf("matching = %#v, want [1 0]", got)
	}
}

func TestNotices(t *testing.T) {
	states := map[session.State]string{
		session.StateBlockedNotFound:  "ExamNotFound",
		session.StateBlockedInactive:  "ExamInactive",
		session.StateBlockedSubmitted: "AlreadySubmitted",
		session.StateError:            "SessionError",
	}
	for st, want := range states {
		if got := stateNotice(st); got != want {
			t.Errorf("stateNotice(%s) = %s, want %s", st, got, want)
		}
	}

	transient := &model.TransientError{Op: "submit", Err: errors.New("reset")}
	events := []struct {
		e    session.Event
		want string
	}{
		{session.Event{Kind: session.EventExpired}, "TimeExpired"},
		{session.Event{Kind: session.EventSaveFailed}, "SaveFailed"},
		{session.Event{Kind: session.EventSaveFailed, Err: transient}, "SaveFailed"},
		{session.Event{Kind: session.EventSaveFailed, Err: model.ErrImmutableAttempt}, "SaveRejected"},
		{session.Event{Kind: session.EventSubmitFailed, Err: transient}, "SubmitFailed"},
		{session.Event{Kind: session.EventSubmitFailed, Reason: session.ReasonAuto, Err: model.ErrImmutableAttempt}, "SubmitFailed"},
		{session.Event{Kind: session.EventSubmitFailed, Err: model.ErrNotActive}, ""},
		{session.Event{Kind: session.EventSubmitted}, "Submitted"},
		{session.Event{Kind: session.EventTick}, ""},
	}
	for _, tt := range events {
		if got := eventNotice(tt.e); got != tt.want {
			t.Errorf("eventNotice(%s) = %q, want %q", tt.e.Kind, got, tt.want)
		}
	}
}

const examFile = `[
  {"key": "bio-1", "title": "Biology", "status": "active", "duration_minutes": 20,
   "items": [
     {"id": "q1", "type": "mcq", "question": "Powerhouse of the cell?", "points": 2,
      "options": [{"text": "Nucleus"}, {"text": "Mitochondria", "correct": true}]},
     {"id": "q2", "type": "essay", "question": "Describe osmosis.", "points": 5}
   ]}
]`

func TestLoadExams(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bio.json")
	if err := os.WriteFile(path, []byte(examFile), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := loadExams(ctx, db, []string{path}); err != nil {
		t.Fatalf("first load: %v", err)
	}
	e, err := db.GetExam(ctx, "bio-1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if len(e.Items) != 2 || e.TotalPoints != 7 {
		t.Errorf("exam = %d items, %d points", len(e.Items), e.TotalPoints)
	}

	if err := loadExams(ctx, db, []string{path}); err != nil {
		t.Fatalf("unchanged reload: %v", err)
	}
	changed := strings.Replace(examFile, "Biology", "Biology II", 1)
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadExams(ctx, db, []string{path}); err != nil {
		t.Fatalf("changed reload: %v", err)
	}
	exams, err := db.ListExams(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(exams) != 1 || exams[0].Title != "Biology" {
		t.Errorf("exams after reloads = %+v", exams)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"title": "One option", "items": [{"type": "mcq", "question": "?", "options": [{"text": "a"}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadExams(ctx, db, []string{bad}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("invalid exam file = %v, want ErrInvalid", err)
	}
}

func TestSeedTeacher(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	if err := seedTeacher(ctx, db, "teacher", ""); err == nil {
		t.Fatal("empty password should be rejected on an empty database")
	}
	if err := seedTeacher(ctx, db, "teacher", "s3cret"); err != nil {
		t.Fatal(err)
	}
	u, err := db.GetUserByUsername(ctx, "teacher")
	if err != nil || u == nil || u.Role != model.UserRoleTeacher {
		t.Fatalf("seeded user = %+v, %v", u, err)
	}
	if err := seedTeacher(ctx, db, "other", ""); err != nil {
		t.Errorf("seeding with existing users should be a no-op: %v", err)
	}
}

func TestTerminalSession(t *testing.T) {
	if err := appI18n.Init("en"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	db := newTestStore(t)
	if err := loadExams(ctx, db, []string{writeExamFile(t)}); err != nil {
		t.Fatal(err)
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw-juan"), bcrypt.MinCost)
	if _, err := db.CreateUser(ctx, model.User{Username: "juan", PasswordHash: string(hash), Active: true}); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	handler.New(db, handler.Options{}).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.Options{})
	if err != nil {
		t.Fatal(err)
	}
	user, err := c.Login(ctx, "juan", "pw-juan")
	if err != nil {
		t.Fatal(err)
	}
	sess := session.New(c, session.Options{})
	t.Cleanup(func() { sess.Close(context.Background()) })
	if err := sess.Open(ctx, "bio-1", user.ID); err != nil {
		t.Fatalf("open: %v", err)
	}

	var out bytes.Buffer
	term := &terminal{sess: sess, api: c, out: &out, lastBand: sess.Band()}
	input := strings.NewReader("answer 1 2\nanswer 9 x\nfly\nanswer 2 Water moves across a membrane\ntime\nsubmit\n")
	if err := term.run(ctx, input, make(chan session.Event, 8)); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Biology",
		"1. Powerhouse of the cell? (2 pt)",
		"2) Mitochondria",
		"question number must be 1-2",
		`unknown command "fly"`,
		"2 items answered, Progress: 100%",
		"Your exam has been submitted.",
		"Score: 2 / 7 (Pending)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if sess.State() != session.StateSubmitted {
		t.Errorf("state = %s, want submitted", sess.State())
	}
}

func writeExamFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bio.json")
	if err := os.WriteFile(path, []byte(examFile), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
