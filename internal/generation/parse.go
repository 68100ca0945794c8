package generation

import (
	"encoding/json"
	"errors"
	"strings"
)

// ParseKind tags a ParseResult.
type ParseKind int

const (
	ParseKindParsed ParseKind = iota
	ParseKindFallback
)

// ParseResult is either a parsed object or a fallback carrying the raw text and the cause.
type ParseResult struct {
	Kind  ParseKind
	Value map[string]any
	Raw   string
	Err   error
}

// Parsed builds a successful result.
func Parsed(value map[string]any) ParseResult {
	return ParseResult{Kind: ParseKindParsed, Value: value}
}

// Fallback builds a result that substitutes def for unparseable raw text.
func Fallback(def map[string]any, raw string, err error) ParseResult {
	return ParseResult{Kind: ParseKindFallback, Value: def, Raw: raw, Err: err}
}

// IsFallback reports whether parsing failed.
func (r ParseResult) IsFallback() bool {
	return r.Kind == ParseKindFallback
}

var errNotObject = errors.New("completion is not a JSON object")

// ParseOutput decodes raw as a JSON object, tolerating a surrounding markdown code fence.
// It never panics; anything else yields a Fallback with def.
func ParseOutput(raw string, def map[string]any) ParseResult {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return Fallback(def, raw, errors.New("empty completion"))
	}
	var value any
	if errUnmarshal := json.Unmarshal([]byte(text), &value); errUnmarshal != nil {
		return Fallback(def, raw, errUnmarshal)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return Fallback(def, raw, errNotObject)
	}
	return Parsed(obj)
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the language tag line.
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
