package policy

import (
	"sort"

	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/tools"
)

// Table maps each plan to the set of tool IDs it grants.
type Table struct {
	plans   map[string]map[string]struct{}
	offered func(plan string) bool
}

// NewTable builds the default table from the registry: the free trial grants the tools
// flagged FreeInTrial and every paid plan grants all tools. overrides narrows paid plans;
// an empty or missing override keeps the full set. The free trial set cannot be overridden.
// enabled reports whether a plan is currently offered; nil offers every plan. A disabled plan
// still grants its tools to existing subscribers but is never named as the plan to upgrade to.
func NewTable(registry *tools.Registry, overrides map[string][]string, enabled func(plan string) bool) Table {
	all := make(map[string]struct{})
	trial := make(map[string]struct{})
	for _, def := range registry.List() {
		all[def.ID] = struct{}{}
		if def.FreeInTrial {
			trial[def.ID] = struct{}{}
		}
	}

	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	t := Table{plans: make(map[string]map[string]struct{}, len(models.Plans)), offered: enabled}
	t.plans[models.PlanFreeTrial] = trial
	for _, plan := range models.Plans {
		if plan == models.PlanFreeTrial {
			continue
		}
		ids, ok := overrides[plan]
		if !ok || len(ids) == 0 {
			t.plans[plan] = all
			continue
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, known := all[id]; known {
				set[id] = struct{}{}
			}
		}
		t.plans[plan] = set
	}
	return t
}

// Grants reports whether plan includes toolID.
func (t Table) Grants(plan, toolID string) bool {
	set, ok := t.plans[plan]
	if !ok {
		return false
	}
	_, granted := set[toolID]
	return granted
}

// Tools returns the sorted tool IDs granted by plan.
func (t Table) Tools(plan string) []string {
	set := t.plans[plan]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RequiredPlan returns the cheapest enabled plan that grants toolID, or "" when none does.
func (t Table) RequiredPlan(toolID string) string {
	for _, plan := range models.Plans {
		if t.isOffered(plan) && t.Grants(plan, toolID) {
			return plan
		}
	}
	return ""
}

// RequiredPaidPlan returns the cheapest enabled paid plan that grants toolID.
func (t Table) RequiredPaidPlan(toolID string) string {
	for _, plan := range models.Plans {
		if plan == models.PlanFreeTrial {
			continue
		}
		if t.isOffered(plan) && t.Grants(plan, toolID) {
			return plan
		}
	}
	return ""
}

func (t Table) isOffered(plan string) bool {
	return t.offered == nil || t.offered(plan)
}
