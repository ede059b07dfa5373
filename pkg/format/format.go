// Package format classifies finalized answers and turns structured JSON
// answers into readable text.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

var (
	fenceRegex = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*\\n?(.*?)\\n?```$")
	thinkRegex = regexp.MustCompile(`(?is)<think(?:ing)?>(.*?)</think(?:ing)?>`)
)

// envelopeKeys are the wrapper keys whose string value is the whole answer
var envelopeKeys = []string{"answer", "response", "text", "content", "message"}

type field struct {
	key   string
	value any
}

// object keeps JSON keys in document order
type object []field

// IsStructuredJSONResponse reports whether text (optionally inside a ```json
// fence) is a JSON object or array
func IsStructuredJSONResponse(text string) bool {
	s := strings.TrimSpace(stripFence(text))
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	_, err := parse(s)
	return err == nil
}

// RenderSecretPromptResponse renders a structured analysis as headed sections.
// Text that is not JSON is returned unchanged.
func RenderSecretPromptResponse(text string) string {
	v, err := parse(text)
	if err != nil {
		return text
	}

	obj, ok := v.(object)
	if !ok {
		return strings.TrimRight(renderBlock(v, "", true), "\n")
	}

	sections := make([]string, 0, len(obj))
	for _, f := range obj {
		var body string
		if isScalar(f.value) {
			body = scalar(f.value)
		} else {
			body = strings.TrimRight(renderBlock(f.value, "", true), "\n")
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", humanize(f.key), body))
	}
	return strings.Join(sections, "\n\n")
}

// ConvertJSONToPlainText unwraps answer envelopes and flattens other JSON into
// "Key: value" lines. Text that is not JSON is returned unchanged.
func ConvertJSONToPlainText(text string) string {
	if !IsStructuredJSONResponse(text) {
		return text
	}

	v, err := parse(text)
	if err != nil {
		return text
	}

	if obj, ok := v.(object); ok {
		for _, key := range envelopeKeys {
			for _, f := range obj {
				if f.key == key {
					if s, ok := f.value.(string); ok {
						return s
					}
				}
			}
		}
	}

	return strings.TrimRight(renderBlock(v, "", false), "\n")
}

// SplitThinking moves inline <think> blocks out of an answer.
// ok is false when the answer has no such block.
func SplitThinking(text string) (thinking, answer string, ok bool) {
	matches := thinkRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", text, false
	}

	var parts []string
	for _, m := range matches {
		if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			parts = append(parts, strings.TrimSpace(m[1]))
		}
	}

	return strings.Join(parts, "\n\n"), strings.TrimSpace(thinkRegex.ReplaceAllString(text, "")), true
}

// Default adapts the package functions to the stream formatter contract
type Default struct{}

func (Default) IsStructured(text string) bool { return IsStructuredJSONResponse(text) }

func (Default) RenderStructured(text string) string { return RenderSecretPromptResponse(text) }

func (Default) ToPlainText(text string) string { return ConvertJSONToPlainText(text) }

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if m := fenceRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func parse(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(stripFence(text))))
	dec.UseNumber()

	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := object{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, field{key: key, value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

func renderBlock(v any, indent string, markdown bool) string {
	var b strings.Builder

	switch t := v.(type) {
	case object:
		for _, f := range t {
			label := humanize(f.key) + ":"
			if markdown {
				label = "**" + label + "**"
			}
			if isScalar(f.value) {
				fmt.Fprintf(&b, "%s%s %s\n", indent, label, scalar(f.value))
				continue
			}
			fmt.Fprintf(&b, "%s%s\n", indent, label)
			b.WriteString(renderBlock(f.value, indent+"  ", markdown))
		}
	case []any:
		for _, item := range t {
			if isScalar(item) {
				fmt.Fprintf(&b, "%s- %s\n", indent, scalar(item))
				continue
			}
			lines := strings.Split(strings.TrimRight(renderBlock(item, "", markdown), "\n"), "\n")
			for i, line := range lines {
				prefix := "  "
				if i == 0 {
					prefix = "- "
				}
				fmt.Fprintf(&b, "%s%s%s\n", indent, prefix, line)
			}
		}
	default:
		fmt.Fprintf(&b, "%s%s\n", indent, scalar(v))
	}

	return b.String()
}

func isScalar(v any) bool {
	switch v.(type) {
	case object, []any:
		return false
	}
	return true
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprint(t)
	}
}

// humanize turns snake_case, kebab-case and camelCase keys into title case
func humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
