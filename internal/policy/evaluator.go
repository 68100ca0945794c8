package policy

import (
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/tools"
)

// Reason is the machine-readable cause of a denial.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonAccountSuspended     Reason = "ACCOUNT_SUSPENDED"
	ReasonUnknownTool          Reason = "UNKNOWN_TOOL"
	ReasonTrialExpired         Reason = "TRIAL_EXPIRED"
	ReasonSubscriptionInactive Reason = "SUBSCRIPTION_INACTIVE"
	ReasonToolNotInPlan        Reason = "TOOL_NOT_IN_PLAN"
)

// Input is everything the evaluator looks at.
type Input struct {
	Subscription models.Subscription
	Suspended    bool
	ToolID       string
	Now          time.Time
}

// InputFor builds an Input from a stored user.
func InputFor(user *models.User, toolID string, now time.Time) Input {
	return Input{
		Subscription: user.Subscription,
		Suspended:    user.IsSuspended,
		ToolID:       toolID,
		Now:          now,
	}
}

// Decision is the evaluator verdict.
type Decision struct {
	Allowed      bool
	Reason       Reason
	RequiredPlan string
}

// TrialExpired reports whether the denial was caused by an expired trial.
func (d Decision) TrialExpired() bool {
	return d.Reason == ReasonTrialExpired
}

// Message is the human readable form of the denial reason.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonAccountSuspended:
		return "Your account has been suspended"
	case ReasonUnknownTool:
		return "Tool not found"
	case ReasonTrialExpired:
		return "Your free trial has expired. Please upgrade to continue"
	case ReasonSubscriptionInactive:
		return "Your subscription is not active"
	case ReasonToolNotInPlan:
		return "This tool is not available on your current plan"
	default:
		return ""
	}
}

// Evaluator decides whether a subscription may use a tool. It performs no I/O.
type Evaluator struct {
	registry *tools.Registry
	table    Table
}

// NewEvaluator constructs an Evaluator over registry and table.
func NewEvaluator(registry *tools.Registry, table Table) *Evaluator {
	return &Evaluator{registry: registry, table: table}
}

// Table returns the plan table used by the evaluator.
func (e *Evaluator) Table() Table {
	return e.table
}

// Evaluate applies the checks in order: suspension, unknown tool, expired trial,
// inactive subscription, plan membership.
func (e *Evaluator) Evaluate(in Input) Decision {
	if in.Suspended {
		return Decision{Reason: ReasonAccountSuspended}
	}
	if _, ok := e.registry.Get(in.ToolID); !ok {
		return Decision{Reason: ReasonUnknownTool}
	}
	sub := in.Subscription
	if sub.IsTrialExpired(in.Now) {
		return Decision{Reason: ReasonTrialExpired, RequiredPlan: e.table.RequiredPaidPlan(in.ToolID)}
	}
	if sub.Status == models.SubscriptionInactive {
		return Decision{Reason: ReasonSubscriptionInactive, RequiredPlan: e.table.RequiredPaidPlan(in.ToolID)}
	}
	plan := sub.Plan
	// A trial status always evaluates against the trial tool set.
	if sub.Status == models.SubscriptionTrial {
		plan = models.PlanFreeTrial
	}
	if !e.table.Grants(plan, in.ToolID) {
		return Decision{Reason: ReasonToolNotInPlan, RequiredPlan: e.table.RequiredPaidPlan(in.ToolID)}
	}
	return Decision{Allowed: true, RequiredPlan: e.table.RequiredPlan(in.ToolID)}
}
