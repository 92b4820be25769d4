package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AlreadySubmitted"); got != "You have already submitted this exam." {
		t.Errorf("T(AlreadySubmitted) = %q", got)
	}
	if got := T(ctx, "ExamNotFound"); got != "This exam does not exist." {
		t.Errorf("T(ExamNotFound) = %q", got)
	}
}

func TestTranslateFilipino(t *testing.T) {
	ctx := initLang(t, "fil")

	if got := T(ctx, "Submitted"); got != "Naipasa na ang iyong pagsusulit." {
		t.Errorf("T(Submitted) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "UnansweredWarning", 1); got != "1 item is still unanswered." {
		t.Errorf("Tp(UnansweredWarning, 1) = %q", got)
	}
	if got := Tp(ctx, "UnansweredWarning", 3); got != "3 items are still unanswered." {
		t.Errorf("Tp(UnansweredWarning, 3) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Td(ctx, "TimeRemaining", map[string]any{"Time": "4:59"}); got != "Time remaining: 4:59" {
		t.Errorf("Td(TimeRemaining) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	initLang(t, "en")

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"default", "", "Your exam has been submitted."},
		{"filipino", "fil-PH,fil;q=0.9,en;q=0.5", "Naipasa na ang iyong pagsusulit."},
		{"unsupported falls back", "de-DE", "Your exam has been submitted."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "Submitted")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
