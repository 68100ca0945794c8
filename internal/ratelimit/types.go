package ratelimit

import "time"

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || r.Reset.IsZero() || !r.Reset.After(now) {
		return 0
	}
	return r.Reset.Sub(now)
}

// Scope indicates which operation the rate limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeGenerate
	ScopeLogin
)

// Decision describes the resolved rate limit and scope.
type Decision struct {
	Limit  int
	Window time.Duration
	Scope  Scope
}
