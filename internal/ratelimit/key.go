package ratelimit

import (
	"fmt"
	"strings"
)

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(identity string, decision Decision) string {
	identity = strings.TrimSpace(identity)
	if identity == "" || decision.Limit <= 0 || decision.Window <= 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeGenerate:
		return fmt.Sprintf("gen:u:%s", identity)
	case ScopeLogin:
		return fmt.Sprintf("login:%s", strings.ToLower(identity))
	default:
		return ""
	}
}
