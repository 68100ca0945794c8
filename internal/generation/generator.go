// Package generation turns a tool invocation into structured output, either through a
// chat completion upstream or a deterministic placeholder.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/marketforge/marketforge/internal/tools"
)

// Generator produces the output object for one tool invocation.
type Generator interface {
	Generate(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error)
}

// maxRawExcerpt bounds how much unparseable completion text is echoed into errors and logs.
const maxRawExcerpt = 200

// UpstreamError reports a failed generation. Fallback is set when a usable default exists;
// Raw holds the completion text that could not be parsed.
type UpstreamError struct {
	Message  string
	Fallback json.RawMessage
	Raw      string
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Raw != "" {
		msg = fmt.Sprintf("%s (raw: %q)", msg, RawExcerpt(e.Raw))
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// RawExcerpt trims raw to a bounded, rune-safe prefix.
func RawExcerpt(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= maxRawExcerpt {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:maxRawExcerpt]) + "..."
}
