package generation

import (
	"context"
	"encoding/json"
	"strings"

	internalsettings "github.com/marketforge/marketforge/internal/settings"
	"github.com/marketforge/marketforge/internal/tools"
)

// Router picks the LLM or the placeholder generator per call from the settings snapshot.
type Router struct {
	llm         Generator
	placeholder Generator
	mode        func() string
}

// NewRouter builds a Router. A nil llm forces placeholder mode.
func NewRouter(llm Generator) *Router {
	return &Router{
		llm:         llm,
		placeholder: PlaceholderGenerator{},
		mode: func() string {
			return internalsettings.String(internalsettings.GenerationModeKey, internalsettings.DefaultGenerationMode)
		},
	}
}

// Mode returns the generator that the next call will use.
func (r *Router) Mode() string {
	if r.llm == nil || strings.EqualFold(strings.TrimSpace(r.mode()), internalsettings.GenerationModePlaceholder) {
		return internalsettings.GenerationModePlaceholder
	}
	return internalsettings.GenerationModeLLM
}

// Generate delegates to the generator selected by Mode.
func (r *Router) Generate(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error) {
	if r.Mode() == internalsettings.GenerationModePlaceholder {
		return r.placeholder.Generate(ctx, def, input)
	}
	return r.llm.Generate(ctx, def, input)
}
