package generation

import (
	"context"
	"encoding/json"

	"github.com/marketforge/marketforge/internal/tools"
)

// PlaceholderGenerator returns each tool's deterministic sample output.
type PlaceholderGenerator struct{}

// Generate returns the placeholder for def, honoring ctx cancellation.
func (PlaceholderGenerator) Generate(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, &UpstreamError{Message: "generation canceled", Err: errCtx}
	}
	out, errMarshal := json.Marshal(def.Placeholder(input))
	if errMarshal != nil {
		return nil, &UpstreamError{Message: "failed to encode output", Err: errMarshal}
	}
	return out, nil
}
