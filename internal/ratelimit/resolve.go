package ratelimit

import "time"

// ResolveLimit resolves the effective limit and window for scope from settings.
func ResolveLimit(cfg SettingsConfig, scope Scope) Decision {
	switch scope {
	case ScopeGenerate:
		return Decision{Limit: cfg.GenerateLimit, Window: cfg.GenerateWindow, Scope: ScopeGenerate}
	case ScopeLogin:
		return Decision{Limit: cfg.LoginLimit, Window: cfg.LoginWindow, Scope: ScopeLogin}
	default:
		return Decision{}
	}
}

// secondsDuration converts a non-negative second count to a duration.
func secondsDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
