package answer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Normalize converts a wire or storage value into the canonical value for item.
//
// A nil Value with a nil error means the item is unanswered. Values that cannot
// be interpreted return an error wrapping model.ErrMalformedAnswer; callers
// restoring many rows treat that item as unanswered and continue.
func Normalize(item model.ExamItem, raw any) (Value, error) {
	raw, err := decodeRaw(raw)
	if err != nil {
		if item.Type == model.ItemMatching {
			return Matching{}, nil
		}
		return nil, malformed(item, err)
	}

	switch {
	case item.Type == model.ItemMCQ:
		return normalizeMCQ(item, raw)
	case item.Type == model.ItemTrueFalse:
		return normalizeTrueFalse(item, raw)
	case item.Type.FreeText():
		return normalizeText(raw), nil
	case item.Type == model.ItemMatching:
		return normalizeMatching(item, raw)
	}
	return nil, malformed(item, fmt.Errorf("unknown item type %q", item.Type))
}

// Denormalize converts a canonical value into its wire representation.
func Denormalize(v Value) any {
	switch x := v.(type) {
	case MCQ:
		return int(x)
	case TrueFalse:
		return bool(x)
	case Text:
		return string(x)
	case Matching:
		out := make([]model.MatchPair, len(x))
		copy(out, x)
		return out
	}
	return nil
}

// Marshal encodes a canonical value as JSON wire data.
func Marshal(v Value) (json.RawMessage, error) {
	b, err := json.Marshal(Denormalize(v))
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}
	return b, nil
}

func malformed(item model.ExamItem, err error) error {
	return fmt.Errorf("item %s (%s): %w: %v", item.ID, item.Type, model.ErrMalformedAnswer, err)
}

// decodeRaw turns JSON bytes into plain Go values and passes anything else through.
func decodeRaw(raw any) (any, error) {
	var b []byte
	switch x := raw.(type) {
	case json.RawMessage:
		b = x
	case []byte:
		b = x
	default:
		return raw, nil
	}
	if len(b) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func normalizeMCQ(item model.ExamItem, raw any) (Value, error) {
	if raw == nil {
		return nil, nil
	}
	idx, ok := toIndex(raw)
	if !ok {
		return nil, malformed(item, fmt.Errorf("not an option index: %v", raw))
	}
	if idx < 0 || (len(item.Options) > 0 && idx >= len(item.Options)) {
		return nil, malformed(item, fmt.Errorf("option index %d out of range", idx))
	}
	return MCQ(idx), nil
}

func normalizeTrueFalse(item model.ExamItem, raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case TrueFalse:
		return x, nil
	case bool:
		return TrueFalse(x), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1":
			return TrueFalse(true), nil
		case "false", "0":
			return TrueFalse(false), nil
		}
	default:
		if n, ok := toIndex(raw); ok && (n == 0 || n == 1) {
			return TrueFalse(n == 1), nil
		}
	}
	return nil, malformed(item, fmt.Errorf("not a boolean: %v", raw))
}

func normalizeText(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Text("")
	case Text:
		return x
	case string:
		return Text(x)
	case bool:
		return Text(strconv.FormatBool(x))
	case float64:
		return Text(strconv.FormatFloat(x, 'f', -1, 64))
	case int:
		return Text(strconv.Itoa(x))
	case int64:
		return Text(strconv.FormatInt(x, 10))
	}
	if b, err := json.Marshal(raw); err == nil {
		return Text(b)
	}
	return Text(fmt.Sprint(raw))
}

func normalizeMatching(item model.ExamItem, raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case Matching:
		return append(Matching{}, x...), nil
	case []model.MatchPair:
		return append(Matching{}, x...), nil
	case []int:
		elems := make([]any, len(x))
		for i, n := range x {
			elems[i] = n
		}
		return matchingFromElems(item, elems), nil
	case string:
		var v any
		if err := json.Unmarshal([]byte(x), &v); err != nil {
			return Matching{}, nil
		}
		if _, nested := v.(string); nested {
			return Matching{}, nil
		}
		return normalizeMatching(item, v)
	case []any:
		return matchingFromElems(item, x), nil
	}
	return nil, malformed(item, fmt.Errorf("not a matching answer: %T", raw))
}

// matchingFromElems accepts either {left,right} objects or right-hand indices
// aligned positionally with the item's left-hand entries. Indices point into
// the displayed right column, never the key order.
func matchingFromElems(item model.ExamItem, elems []any) Matching {
	out := Matching{}
	rights := item.DisplayRights()
	for i, e := range elems {
		if m, ok := e.(map[string]any); ok {
			l, lok := m["left"].(string)
			r, rok := m["right"].(string)
			if lok && rok {
				out = append(out, model.MatchPair{Left: l, Right: r})
			}
			continue
		}
		idx, ok := toIndex(e)
		if !ok || i >= len(item.Pairs) || idx < 0 || idx >= len(rights) {
			continue
		}
		out = append(out, model.MatchPair{Left: item.Pairs[i].Left, Right: rights[idx]})
	}
	return out
}

func toIndex(raw any) (int, bool) {
	switch x := raw.(type) {
	case MCQ:
		return int(x), true
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}
