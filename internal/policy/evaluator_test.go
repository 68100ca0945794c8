package policy

import (
	"testing"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/tools"
)

func newTestEvaluator(overrides map[string][]string) *Evaluator {
	registry := tools.Default()
	return NewEvaluator(registry, NewTable(registry, overrides, nil))
}

func trialSubscription(start time.Time) models.Subscription {
	end := start.Add(7 * 24 * time.Hour)
	return models.Subscription{
		Plan:           models.PlanFreeTrial,
		Status:         models.SubscriptionTrial,
		TrialStartDate: &start,
		TrialEndDate:   &end,
	}
}

func TestFreeTrialAccessMatchesFlagAndWindow(t *testing.T) {
	e := newTestEvaluator(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := trialSubscription(start)

	instants := []time.Time{
		start,
		start.Add(3 * 24 * time.Hour),
		sub.TrialEndDate.Add(-time.Nanosecond),
		*sub.TrialEndDate,
		start.Add(8 * 24 * time.Hour),
	}
	for _, def := range tools.Default().List() {
		for _, now := range instants {
			d := e.Evaluate(Input{Subscription: sub, ToolID: def.ID, Now: now})
			want := def.FreeInTrial && now.Before(*sub.TrialEndDate)
			if d.Allowed != want {
				t.Fatalf("tool=%s now=%s: expected allowed=%v, got %+v", def.ID, now, want, d)
			}
		}
	}
}

func TestTrialExpiredDenial(t *testing.T) {
	e := newTestEvaluator(nil)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := e.Evaluate(Input{Subscription: trialSubscription(start), ToolID: tools.AdCopy, Now: start.Add(8 * 24 * time.Hour)})
	if d.Allowed || !d.TrialExpired() {
		t.Fatalf("expected TRIAL_EXPIRED, got %+v", d)
	}
	if d.RequiredPlan != models.PlanStarter {
		t.Fatalf("expected required plan starter, got %q", d.RequiredPlan)
	}
}

func TestTrialWithoutEndDateIsExpired(t *testing.T) {
	e := newTestEvaluator(nil)
	sub := models.Subscription{Plan: models.PlanFreeTrial, Status: models.SubscriptionTrial}
	d := e.Evaluate(Input{Subscription: sub, ToolID: tools.AdCopy, Now: time.Now()})
	if d.Reason != ReasonTrialExpired {
		t.Fatalf("expected TRIAL_EXPIRED, got %+v", d)
	}
}

func TestSuspendedAlwaysDenied(t *testing.T) {
	e := newTestEvaluator(nil)
	now := time.Now()
	subs := []models.Subscription{
		trialSubscription(now),
		{Plan: models.PlanPro, Status: models.SubscriptionActive},
		{Plan: models.PlanAgency, Status: models.SubscriptionActive},
	}
	ids := append(tools.Default().IDs(), "unknown-tool")
	for _, sub := range subs {
		for _, id := range ids {
			d := e.Evaluate(Input{Subscription: sub, Suspended: true, ToolID: id, Now: now})
			if d.Allowed || d.Reason != ReasonAccountSuspended {
				t.Fatalf("plan=%s tool=%s: expected ACCOUNT_SUSPENDED, got %+v", sub.Plan, id, d)
			}
		}
	}
}

func TestPaidPlansGrantEveryTool(t *testing.T) {
	e := newTestEvaluator(nil)
	for _, plan := range []string{models.PlanStarter, models.PlanPro, models.PlanAgency} {
		sub := models.Subscription{Plan: plan, Status: models.SubscriptionActive}
		for _, id := range tools.Default().IDs() {
			if d := e.Evaluate(Input{Subscription: sub, ToolID: id, Now: time.Now()}); !d.Allowed {
				t.Fatalf("plan=%s tool=%s: expected allowed, got %+v", plan, id, d)
			}
		}
	}
}

func TestUnknownToolDenied(t *testing.T) {
	e := newTestEvaluator(nil)
	sub := models.Subscription{Plan: models.PlanPro, Status: models.SubscriptionActive}
	if d := e.Evaluate(Input{Subscription: sub, ToolID: "nope", Now: time.Now()}); d.Reason != ReasonUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %+v", d)
	}
}

func TestInactiveSubscriptionDenied(t *testing.T) {
	e := newTestEvaluator(nil)
	sub := models.Subscription{Plan: models.PlanPro, Status: models.SubscriptionInactive}
	if d := e.Evaluate(Input{Subscription: sub, ToolID: tools.AdCopy, Now: time.Now()}); d.Reason != ReasonSubscriptionInactive {
		t.Fatalf("expected SUBSCRIPTION_INACTIVE, got %+v", d)
	}
}

func TestOverrideNarrowsPaidPlan(t *testing.T) {
	e := newTestEvaluator(map[string][]string{models.PlanStarter: {tools.AdCopy, tools.BlogOutline}})
	sub := models.Subscription{Plan: models.PlanStarter, Status: models.SubscriptionActive}

	if d := e.Evaluate(Input{Subscription: sub, ToolID: tools.BlogOutline, Now: time.Now()}); !d.Allowed {
		t.Fatalf("expected blog outline allowed on starter, got %+v", d)
	}
	d := e.Evaluate(Input{Subscription: sub, ToolID: tools.BrandVoice, Now: time.Now()})
	if d.Reason != ReasonToolNotInPlan {
		t.Fatalf("expected TOOL_NOT_IN_PLAN, got %+v", d)
	}
	if d.RequiredPlan != models.PlanPro {
		t.Fatalf("expected required plan pro, got %q", d.RequiredPlan)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	e := newTestEvaluator(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Input{Subscription: trialSubscription(now.Add(-24 * time.Hour)), ToolID: tools.EmailCampaign, Now: now}
	first := e.Evaluate(in)
	for i := 0; i < 5; i++ {
		if got := e.Evaluate(in); got != first {
			t.Fatalf("expected %+v, got %+v", first, got)
		}
	}
}

func TestRequiredPlanDerivedFromTable(t *testing.T) {
	table := NewTable(tools.Default(), nil, nil)
	if got := table.RequiredPlan(tools.AdCopy); got != models.PlanFreeTrial {
		t.Fatalf("expected free_trial, got %q", got)
	}
	if got := table.RequiredPlan(tools.BrandVoice); got != models.PlanStarter {
		t.Fatalf("expected starter, got %q", got)
	}
	if got := table.RequiredPlan("unknown"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
