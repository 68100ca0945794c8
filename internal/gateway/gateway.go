// Package gateway runs a tool invocation through rate limiting, access control, generation
// and usage recording.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/generation"
	"github.com/marketforge/marketforge/internal/metrics"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	"github.com/marketforge/marketforge/internal/usage"
	log "github.com/sirupsen/logrus"
)

const defaultGenerateTimeout = 30 * time.Second

// UserLookup loads the account being served.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*models.User, error)
}

// RateLimiter admits or rejects a keyed request.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error)
}

// Recorder persists a finished attempt.
type Recorder interface {
	Record(ctx context.Context, attempt usage.Attempt) (usage.Receipt, error)
}

// Config wires the gateway dependencies. Now, Limits and Timeout have defaults.
type Config struct {
	Registry  *tools.Registry
	Users     UserLookup
	Limiter   RateLimiter
	Limits    func() ratelimit.Decision
	Policy    policy.Provider
	Generator generation.Generator
	Recorder  Recorder
	Now       func() time.Time
	Timeout   time.Duration
}

// Gateway executes tool invocations.
type Gateway struct {
	registry  *tools.Registry
	users     UserLookup
	limiter   RateLimiter
	limits    func() ratelimit.Decision
	policy    policy.Provider
	generator generation.Generator
	recorder  Recorder
	now       func() time.Time
	timeout   time.Duration
}

// New constructs a Gateway.
func New(cfg Config) *Gateway {
	g := &Gateway{
		registry:  cfg.Registry,
		users:     cfg.Users,
		limiter:   cfg.Limiter,
		limits:    cfg.Limits,
		policy:    cfg.Policy,
		generator: cfg.Generator,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
		timeout:   cfg.Timeout,
	}
	if g.limits == nil {
		g.limits = func() ratelimit.Decision {
			return ratelimit.ResolveLimit(ratelimit.LoadSettingsConfig(), ratelimit.ScopeGenerate)
		}
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.timeout <= 0 {
		g.timeout = defaultGenerateTimeout
	}
	return g
}

// Request is one tool invocation.
type Request struct {
	UserID uint64
	ToolID string
	Input  json.RawMessage
}

// Result is a successful invocation. Usage is nil when the counters could not be written.
type Result struct {
	Output         json.RawMessage
	ProcessingTime time.Duration
	RecordID       uint64
	Usage          *usage.Snapshot
}

// Invoke runs req through the invocation pipeline. Errors are *apperr.Error values.
func (g *Gateway) Invoke(ctx context.Context, req Request) (*Result, error) {
	// RECEIVED
	input, errInput := g.validate(req)
	if errInput != nil {
		return nil, errInput
	}

	// RATE_CHECK
	if errRate := g.checkRate(ctx, req.UserID); errRate != nil {
		return nil, errRate
	}

	// ACCESS_CHECK
	def, errAccess := g.checkAccess(ctx, req)
	if errAccess != nil {
		return nil, errAccess
	}

	// GENERATE
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	started := time.Now()
	output, errGenerate := g.generator.Generate(genCtx, def, input)
	elapsed := time.Since(started)
	cancel()
	metrics.GenerationDuration.WithLabelValues(def.ID).Observe(elapsed.Seconds())

	attempt := usage.Attempt{
		UserID:         req.UserID,
		ToolID:         def.ID,
		ToolName:       def.Name,
		Input:          req.Input,
		Output:         output,
		ProcessingTime: elapsed,
		At:             g.now(),
	}

	if errGenerate != nil {
		// ERROR_RECORD
		attempt.Output = nil
		attempt.ErrorMessage = failureMessage(errGenerate, g.timeout)
		metrics.Generations.WithLabelValues(def.ID, models.UsageStatusError).Inc()
		g.record(ctx, attempt)
		log.WithError(errGenerate).WithFields(log.Fields{
			"user_id": req.UserID,
			"tool":    def.ID,
			"elapsed": elapsed.String(),
		}).Warn("gateway: generation failed")
		return nil, upstreamError(errGenerate)
	}

	// RECORD
	metrics.Generations.WithLabelValues(def.ID, models.UsageStatusSuccess).Inc()
	result := &Result{Output: output, ProcessingTime: elapsed}
	if receipt, ok := g.record(ctx, attempt); ok {
		result.RecordID = receipt.RecordID
		snap := receipt.Counters
		result.Usage = &snap
	}
	// RESPOND
	return result, nil
}

func (g *Gateway) validate(req Request) (map[string]any, error) {
	raw := bytes.TrimSpace(req.Input)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, apperr.Validation("Input is required")
	}
	var input map[string]any
	if errUnmarshal := json.Unmarshal(raw, &input); errUnmarshal != nil {
		return nil, apperr.Validation("Input must be a JSON object")
	}
	if len(input) == 0 {
		return nil, apperr.Validation("Input is required")
	}
	if def, ok := g.registry.Get(req.ToolID); ok {
		if missing := def.MissingFields(input); len(missing) > 0 {
			return nil, apperr.Validation("Missing required fields").With("fields", missing)
		}
	}
	return input, nil
}

func (g *Gateway) checkRate(ctx context.Context, userID uint64) error {
	if g.limiter == nil {
		return nil
	}
	decision := g.limits()
	key := ratelimit.KeyForDecision(strconv.FormatUint(userID, 10), decision)
	if key == "" {
		return nil
	}
	res, errAllow := g.limiter.Allow(ctx, key, decision.Limit, decision.Window)
	if errAllow != nil {
		log.WithError(errAllow).Warn("gateway: rate limiter unavailable, admitting request")
		return nil
	}
	if res.Allowed {
		return nil
	}
	metrics.RateLimited.WithLabelValues("generate").Inc()
	retry := int(math.Ceil(res.RetryAfter(g.now()).Seconds()))
	return apperr.RateLimit("Too many requests, please slow down", retry)
}

func (g *Gateway) checkAccess(ctx context.Context, req Request) (tools.Definition, error) {
	user, errUser := g.users.GetByID(ctx, req.UserID)
	if errUser != nil {
		if errors.Is(errUser, store.ErrUserNotFound) {
			return tools.Definition{}, apperr.Auth(apperr.CodeUnauthorized, "User not found")
		}
		if errors.Is(errUser, context.Canceled) {
			return tools.Definition{}, apperr.Canceled(errUser)
		}
		return tools.Definition{}, apperr.Internal(errUser)
	}

	decision := g.policy().Evaluate(policy.InputFor(user, req.ToolID, g.now()))
	if !decision.Allowed {
		metrics.AccessDenials.WithLabelValues(string(decision.Reason)).Inc()
		return tools.Definition{}, denial(decision)
	}
	def, _ := g.registry.Get(req.ToolID)
	return def, nil
}

// denial maps a policy verdict to its HTTP error.
func denial(d policy.Decision) error {
	if d.Reason == policy.ReasonUnknownTool {
		return &apperr.Error{Kind: apperr.KindNotFound, Code: string(d.Reason), Message: d.Message()}
	}
	err := apperr.Authorization(string(d.Reason), d.Message())
	if d.RequiredPlan != "" {
		err = err.With("requiredPlan", d.RequiredPlan)
	}
	if d.TrialExpired() {
		err = err.With("trialExpired", true)
	}
	return err
}

func (g *Gateway) record(ctx context.Context, attempt usage.Attempt) (usage.Receipt, bool) {
	receipt, errRecord := g.recorder.Record(ctx, attempt)
	if errRecord != nil {
		metrics.LedgerWriteFailures.Inc()
		log.WithError(errRecord).WithFields(log.Fields{
			"user_id": attempt.UserID,
			"tool":    attempt.ToolID,
			"failed":  !attempt.Succeeded(),
		}).Error("gateway: failed to record usage")
		return usage.Receipt{}, false
	}
	return receipt, true
}

func failureMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("generation timed out after %s", timeout)
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "generation failed"
}

func upstreamError(err error) error {
	out := apperr.Upstream("Failed to generate content", err)
	var upstream *generation.UpstreamError
	if errors.As(err, &upstream) && len(upstream.Fallback) > 0 {
		out = out.With("fallback", upstream.Fallback)
		if upstream.Raw != "" {
			out = out.With("raw", generation.RawExcerpt(upstream.Raw))
		}
	}
	return out
}
