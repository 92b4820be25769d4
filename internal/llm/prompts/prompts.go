package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Templates holds the built-in prompt templates.
//
//go:embed templates/*.txt
var Templates embed.FS

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant selects how strictly essays are scored.
type PromptVariant string

const (
	// PromptStrict expects every rubric point to be covered.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives partial credit generously.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	suggestTemplate map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// SuggestData holds template data for a score suggestion prompt.
type SuggestData struct {
	QuestionText string
	MaxPoints    int
	Rubric       string
	Answer       string
}

// Load parses the suggestion templates found in fsys. Only the first call
// has any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		suggestTemplate = make(map[PromptVariant]*template.Template)
		for v := range validVariants {
			name := "templates/suggest_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			suggestTemplate[v] = tmpl
		}
	})
	return loadErr
}

// BuildSuggestPrompt renders the system prompt asking for a score of one
// essay answer.
func BuildSuggestPrompt(variant PromptVariant, item model.ExamItem, answer string) (string, error) {
	if loadErr != nil {
		return "", fmt.Errorf("templates load failed: %w", loadErr)
	}
	if suggestTemplate == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := suggestTemplate[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, SuggestData{
		QuestionText: item.Question,
		MaxPoints:    item.Points,
		Rubric:       item.Rubric,
		Answer:       sanitizeAnswer(answer),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
