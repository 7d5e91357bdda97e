package directive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/orderflow/pkg/domain"
)

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*\\})\\s*```")
	contentField = regexp.MustCompile(`"content"\s*:\s*("(?:[^"\\]|\\.)*")`)
)

// ParseReply resolves a raw backend reply into one of the two reply variants
// with a single parse attempt. Anything that is not a structured object
// carrying content or directives is plain text.
func ParseReply(raw string) domain.Reply {
	sr, err := DecodeStructured(raw)
	if err != nil {
		return domain.PlainTextReply{Text: raw}
	}
	return sr
}

// DecodeStructured extracts the structured object from raw. It returns
// domain.ErrNoStructuredReply when raw does not carry one.
//
// Fields decode one by one: a malformed field is left at its zero value and a
// malformed directive is dropped, so one bad value never demotes the reply.
func DecodeStructured(raw string) (*domain.StructuredReply, error) {
	_, _, body, ok := objectSpan(raw)
	if !ok {
		return nil, domain.ErrNoStructuredReply
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoStructuredReply, err)
	}
	_, hasContent := fields["content"]
	_, hasDirectives := fields["directives"]
	if !hasContent && !hasDirectives {
		return nil, fmt.Errorf("%w: object has neither content nor directives", domain.ErrNoStructuredReply)
	}

	var sr domain.StructuredReply
	decodeField(fields, "content", &sr.Content)
	decodeField(fields, "nextStage", &sr.NextStage)
	decodeField(fields, "contextUpdates", &sr.ContextUpdates)
	decodeField(fields, "confidence", &sr.Confidence)
	decodeField(fields, "reasoning", &sr.Reasoning)
	sr.Directives = decodeDirectives(fields["directives"])
	return &sr, nil
}

// Prose returns the text of a reply that is not a structured reply. A JSON
// object in raw never reaches the user: it is replaced by its content string
// when one can be read, or cut out.
func Prose(raw string) string {
	start, end, body, ok := objectSpan(raw)
	if !ok {
		trimmed := strings.TrimSpace(raw)
		if !strings.HasPrefix(trimmed, "{") {
			return raw
		}
		// Truncated object.
		start, end, body = 0, len(raw), raw
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err == nil {
		if content, ok := fields["content"].(string); ok {
			return content
		}
	} else if m := contentField.FindStringSubmatch(body); m != nil {
		var content string
		if json.Unmarshal([]byte(m[1]), &content) == nil {
			return content
		}
	}
	return Collapse(raw[:start] + " " + raw[end:])
}

func decodeField(fields map[string]any, key string, out any) {
	v, ok := fields[key]
	if !ok || v == nil {
		return
	}
	_ = decodeWeak(v, out)
}

func decodeDirectives(v any) []domain.RawDirective {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	out := make([]domain.RawDirective, 0, len(items))
	for _, item := range items {
		var d domain.RawDirective
		if err := decodeWeak(item, &d); err != nil || d.Type == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// DecodeContextUpdate reads the contextUpdates bag of a structured reply.
// Unknown keys are ignored and scalar types are coerced where possible.
func DecodeContextUpdate(bag map[string]any) (domain.ContextUpdate, error) {
	var u domain.ContextUpdate
	if len(bag) == 0 {
		return u, nil
	}
	if err := decodeWeak(bag, &u); err != nil {
		return domain.ContextUpdate{}, fmt.Errorf("decode context update: %w", err)
	}
	return u, nil
}

func decodeWeak(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// objectSpan locates the JSON object in raw: the whole fence when fenced, the
// outermost braces otherwise. body is the object text within [start, end).
func objectSpan(raw string) (start, end int, body string, ok bool) {
	if m := fencedObject.FindStringSubmatchIndex(raw); m != nil {
		return m[0], m[1], raw[m[2]:m[3]], true
	}
	start = strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if start < 0 || last <= start {
		return 0, 0, "", false
	}
	return start, last + 1, raw[start : last+1], true
}
