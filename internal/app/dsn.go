package app

import (
	"net/url"
	"regexp"
	"strings"
)

var keywordPasswordPattern = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// DescribeDSN returns dsn with any password redacted, for logging.
func DescribeDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		parsed, errParse := url.Parse(trimmed)
		if errParse != nil {
			return "postgres (unparseable dsn)"
		}
		return parsed.Redacted()
	}
	if strings.Contains(lower, "host=") && strings.Contains(lower, "dbname=") {
		return keywordPasswordPattern.ReplaceAllString(trimmed, "${1}xxxxx")
	}
	if strings.HasPrefix(lower, "file:") {
		if idx := strings.Index(trimmed, "?"); idx >= 0 {
			return "sqlite " + trimmed[len("file:"):idx]
		}
		return "sqlite " + trimmed[len("file:"):]
	}
	return "sqlite " + trimmed
}
