package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/metrics"
	"github.com/marketforge/marketforge/internal/tools"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const systemPrompt = "You are an expert marketing strategist. Respond with a single JSON object only, no prose."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

// LLMGenerator calls an OpenAI-compatible chat completions endpoint.
type LLMGenerator struct {
	client      *resty.Client
	model       string
	temperature float64
}

// NewLLMGenerator builds a generator for cfg. Timeouts come from the caller context.
func NewLLMGenerator(cfg config.LLMConfig) *LLMGenerator {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)
	return &LLMGenerator{client: client, model: cfg.Model, temperature: cfg.Temperature}
}

// Generate renders the tool prompt and parses the completion into an object.
func (g *LLMGenerator) Generate(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error) {
	prompt, errPrompt := def.Prompt(input)
	if errPrompt != nil {
		return nil, &UpstreamError{Message: "failed to build prompt", Err: errPrompt}
	}

	started := time.Now()
	resp, errPost := g.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: g.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			Temperature:    g.temperature,
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		Post("/chat/completions")
	if errPost != nil {
		return nil, &UpstreamError{Message: "AI service request failed", Err: errPost}
	}
	if resp.IsError() {
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = resp.Status()
		}
		return nil, &UpstreamError{Message: "AI service returned an error", Err: fmt.Errorf("status %d: %s", resp.StatusCode(), msg)}
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content")
	log.WithFields(log.Fields{
		"tool":    def.ID,
		"model":   g.model,
		"latency": time.Since(started).String(),
		"tokens":  gjson.GetBytes(resp.Body(), "usage.total_tokens").Int(),
	}).Debug("generation: completion received")

	result := ParseOutput(content.String(), def.Placeholder(input))
	if result.IsFallback() {
		metrics.LLMParseFallbacks.WithLabelValues(def.ID).Inc()
		log.WithError(result.Err).WithFields(log.Fields{
			"tool": def.ID,
			"raw":  RawExcerpt(result.Raw),
		}).Debug("generation: completion was not a JSON object")
		upstream := &UpstreamError{Message: "AI service returned malformed output", Raw: result.Raw, Err: result.Err}
		fallback, errFallback := json.Marshal(result.Value)
		if errFallback != nil {
			upstream.Err = errors.Join(result.Err, fmt.Errorf("encode fallback: %w", errFallback))
			return nil, upstream
		}
		upstream.Fallback = fallback
		return nil, upstream
	}
	out, errMarshal := json.Marshal(result.Value)
	if errMarshal != nil {
		return nil, &UpstreamError{Message: "failed to encode output", Err: errMarshal}
	}
	return out, nil
}
