package tools

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Categories used to group tools in the catalogue.
const (
	CategoryAdvertising = "advertising"
	CategorySEO         = "seo"
	CategoryOutreach    = "outreach"
	CategorySocial      = "social"
	CategoryEmail       = "email"
	CategoryContent     = "content"
	CategoryResearch    = "research"
)

// Definition describes one AI agent tool. Definitions are immutable after registration.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	FreeInTrial bool     `json:"freeInTrial"`
	Required    []string `json:"requiredFields"`

	prompt      *template.Template
	placeholder func(input map[string]any) map[string]any
}

// Prompt renders the user prompt for input.
func (d Definition) Prompt(input map[string]any) (string, error) {
	if d.prompt == nil {
		return "", fmt.Errorf("tools: %s has no prompt template", d.ID)
	}
	var buf bytes.Buffer
	if errExec := d.prompt.Execute(&buf, input); errExec != nil {
		return "", fmt.Errorf("tools: render %s prompt: %w", d.ID, errExec)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Placeholder returns the deterministic fallback output for input.
func (d Definition) Placeholder(input map[string]any) map[string]any {
	if d.placeholder == nil {
		return map[string]any{"result": fmt.Sprintf("%s output is unavailable right now.", d.Name)}
	}
	return d.placeholder(input)
}

// MissingFields returns the required fields absent or blank in input.
func (d Definition) MissingFields(input map[string]any) []string {
	var missing []string
	for _, field := range d.Required {
		v, ok := input[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Registry is a read-only lookup over tool definitions.
type Registry struct {
	byID  map[string]Definition
	order []string
}

// NewRegistry builds a registry; duplicate IDs are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byID: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("tools: empty tool id")
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("tools: duplicate tool id %s", id)
		}
		r.byID[id] = def
		r.order = append(r.order, id)
	}
	return r, nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.byID[strings.TrimSpace(id)]
	return def, ok
}

// List returns definitions in registration order.
func (r *Registry) List() []Definition {
	if r == nil {
		return nil
	}
	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns every tool id, sorted.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// FreeInTrialIDs returns the ids flagged as available during the trial, sorted.
func (r *Registry) FreeInTrialIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, id := range r.order {
		if r.byID[id].FreeInTrial {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// define builds a Definition with a parsed prompt template.
func define(id, name, category, description string, freeInTrial bool, required []string, prompt string, placeholder func(map[string]any) map[string]any) Definition {
	tmpl := template.Must(template.New(id).Option("missingkey=zero").Parse(prompt))
	return Definition{
		ID:          id,
		Name:        name,
		Category:    category,
		Description: description,
		FreeInTrial: freeInTrial,
		Required:    required,
		prompt:      tmpl,
		placeholder: placeholder,
	}
}
