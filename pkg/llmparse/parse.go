package llmparse

import (
	"encoding/json"
	"fmt"
	"strings"
)

type options struct {
	schema *Schema
}

// Option configures a Parse call.
type Option func(*options)

// WithSchema validates the decoded document before it is converted to T.
func WithSchema(s *Schema) Option {
	return func(o *options) { o.schema = s }
}

// Parse decodes raw as shape into T. Strict decoding is tried first, then lenient
// extraction (fence stripping, bracket location, comma repair). It never panics.
func Parse[T any](raw string, shape Shape, opts ...Option) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed[T](fmt.Sprintf("panic while parsing: %v", r))
		}
	}()
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Failed[T]("empty response")
	}
	switch shape {
	case ShapeObject, ShapeArray:
		return parseJSON[T](text, shape, o)
	case ShapeKeyValue:
		return parseKeyValue[T](text, o)
	}
	return Failed[T](fmt.Sprintf("unsupported shape %d", shape))
}

func parseJSON[T any](text string, shape Shape, o options) Result[T] {
	// strict
	if v, err := decode[T](text, shape, o); err == nil {
		return Parsed(v, false)
	}

	lo, hi := byte('{'), byte('}')
	if shape == ShapeArray {
		lo, hi = '[', ']'
	}
	body := StripFences(text)
	var candidates []string
	if span, ok := outerSpan(body, lo, hi); ok {
		candidates = append(candidates, span)
	}
	if span, ok := balancedSpan(body, lo, hi); ok {
		candidates = append(candidates, span)
	}
	if shape == ShapeArray {
		// {"questions": [...]} style wrappers
		if span, ok := balancedSpan(body, '{', '}'); ok {
			if inner, ok := soleArrayField(repair(span)); ok {
				candidates = append(candidates, inner)
			}
		}
	}
	lastErr := fmt.Errorf("no %s found", shape)
	for _, c := range candidates {
		for _, attempt := range []string{c, repair(c)} {
			v, err := decode[T](attempt, shape, o)
			if err == nil {
				return Parsed(v, true)
			}
			lastErr = err
		}
	}
	return Failed[T](lastErr.Error())
}

func decode[T any](text string, shape Shape, o options) (T, error) {
	var zero T
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return zero, err
	}
	switch shape {
	case ShapeObject:
		if _, ok := doc.(map[string]any); !ok {
			return zero, fmt.Errorf("expected object, got %T", doc)
		}
	case ShapeArray:
		if _, ok := doc.([]any); !ok {
			return zero, fmt.Errorf("expected array, got %T", doc)
		}
	}
	if o.schema != nil {
		if err := o.schema.Validate(doc); err != nil {
			return zero, err
		}
	}
	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return zero, err
	}
	return out, nil
}

func soleArrayField(obj string) (string, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return "", false
	}
	found := ""
	for _, v := range m {
		t := strings.TrimSpace(string(v))
		if strings.HasPrefix(t, "[") {
			if found != "" {
				return "", false
			}
			found = t
		}
	}
	return found, found != ""
}

// parseKeyValue reads "key: value" lines. Keys are lower-cased with spaces and dashes
// folded to underscores; bullets and bold markers are dropped.
func parseKeyValue[T any](text string, o options) Result[T] {
	body := StripFences(text)
	m := map[string]string{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*# \t")
		line = strings.ReplaceAll(line, "**", "")
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = normalizeKey(key)
		val = strings.TrimSpace(val)
		if key == "" || val == "" {
			continue
		}
		if _, dup := m[key]; !dup {
			m[key] = val
		}
	}
	if len(m) == 0 {
		return Failed[T]("no key:value lines")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Failed[T](err.Error())
	}
	v, err := decode[T](string(b), ShapeObject, o)
	if err != nil {
		return Failed[T](err.Error())
	}
	return Parsed(v, true)
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return strings.Trim(k, "_")
}
