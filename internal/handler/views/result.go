// Package views renders the server's HTML pages.
package views

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/ianlabicani/lan-exam-web-sub000/internal/i18n"
)

// ResultItem is one row of a result page.
type ResultItem struct {
	Position int
	Question string
	Answer   string
	Answered bool
	Points   int
	Awarded  *float64
}

// ResultData is everything the result page shows.
type ResultData struct {
	ExamTitle   string
	Student     string
	SubmittedAt *time.Time
	Items       []ResultItem
	Score       float64
	TotalPoints int
	FullyGraded bool
}

// ResultPage renders a submitted attempt with its per-item points.
func ResultPage(d ResultData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		title := appI18n.Td(ctx, "ResultTitle", map[string]any{"Title": d.ExamTitle})

		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		b.WriteString(templ.EscapeString(title))
		b.WriteString(`</title></head><body><main class="result">`)
		b.WriteString(`<h1>` + templ.EscapeString(title) + `</h1>`)
		b.WriteString(`<p class="student">` + templ.EscapeString(d.Student))
		if d.SubmittedAt != nil {
			b.WriteString(` &middot; <time datetime="` + d.SubmittedAt.UTC().Format(time.RFC3339) + `">`)
			b.WriteString(templ.EscapeString(d.SubmittedAt.Local().Format("2006-01-02 15:04")) + `</time>`)
		}
		b.WriteString(`</p>`)

		b.WriteString(`<p class="score">` + templ.EscapeString(appI18n.T(ctx, "Score")) + `: `)
		b.WriteString(formatPoints(d.Score) + ` / ` + strconv.Itoa(d.TotalPoints))
		if !d.FullyGraded {
			b.WriteString(` <span class="pending">(` + templ.EscapeString(appI18n.T(ctx, "Pending")) + `)</span>`)
		}
		b.WriteString(`</p><ol class="items">`)

		for _, it := range d.Items {
			b.WriteString(`<li value="` + strconv.Itoa(it.Position) + `"><p class="question">`)
			b.WriteString(templ.EscapeString(it.Question) + `</p>`)
			if it.Answered {
				b.WriteString(`<p class="answer">` + templ.EscapeString(it.Answer) + `</p>`)
			} else {
				b.WriteString(`<p class="answer unanswered">` + templ.EscapeString(appI18n.T(ctx, "NotAnswered")) + `</p>`)
			}
			b.WriteString(`<p class="points">`)
			if it.Awarded != nil {
				b.WriteString(formatPoints(*it.Awarded))
			} else {
				b.WriteString(templ.EscapeString(appI18n.T(ctx, "Pending")))
			}
			b.WriteString(` / ` + strconv.Itoa(it.Points) + `</p></li>`)
		}
		b.WriteString(`</ol></main></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func formatPoints(p float64) string {
	if p == float64(int64(p)) {
		return strconv.FormatInt(int64(p), 10)
	}
	return fmt.Sprintf("%.2f", p)
}
