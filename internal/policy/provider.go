package policy

import (
	"github.com/marketforge/marketforge/internal/plancatalog"
	"github.com/marketforge/marketforge/internal/tools"
)

// Provider returns the evaluator for the current plan catalogue.
type Provider func() *Evaluator

// CatalogProvider builds evaluators from the registry and the plan catalogue snapshot.
func CatalogProvider(registry *tools.Registry) Provider {
	return func() *Evaluator {
		return NewEvaluator(registry, NewTable(registry, plancatalog.ToolOverrides(), plancatalog.IsEnabled))
	}
}

// StaticProvider always returns e.
func StaticProvider(e *Evaluator) Provider {
	return func() *Evaluator { return e }
}
