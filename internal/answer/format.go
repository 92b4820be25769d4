package answer

import (
	"strconv"
	"strings"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Format renders a value for display next to its item. Option indexes are
// shown as the option text.
func Format(item model.ExamItem, v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case MCQ:
		if int(x) >= 0 && int(x) < len(item.Options) {
			return item.Options[x].Text
		}
		return "#" + strconv.Itoa(int(x))
	case TrueFalse:
		if x {
			return "True"
		}
		return "False"
	case Text:
		return string(x)
	case Matching:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, p.Left+" -> "+p.Right)
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
