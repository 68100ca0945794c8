package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the product name shown in emails and the UI.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback product name.
	DefaultSiteName = "MarketForge"
	// TrialDaysKey controls the free trial length granted at registration.
	TrialDaysKey = "TRIAL_DAYS"
	// GenerationModeKey selects the generator: "llm" or "placeholder".
	GenerationModeKey = "GENERATION_MODE"
	// RateLimitGenerateKey controls how many generations a user may start per window.
	RateLimitGenerateKey = "RATE_LIMIT_GENERATE"
	// RateLimitWindowSecondsKey controls the sliding window length for generations.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitLoginKey controls login attempts per email per login window.
	RateLimitLoginKey = "RATE_LIMIT_LOGIN"
	// RateLimitLoginWindowSecondsKey controls the login throttle window.
	RateLimitLoginWindowSecondsKey = "RATE_LIMIT_LOGIN_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"

	DefaultTrialDays                   = 7
	DefaultGenerationMode              = "llm"
	DefaultRateLimitGenerate           = 10
	DefaultRateLimitWindowSeconds      = 60
	DefaultRateLimitLogin              = 5
	DefaultRateLimitLoginWindowSeconds = 900
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "mf:rl"
)

// Generation modes accepted by GenerationModeKey.
const (
	GenerationModeLLM         = "llm"
	GenerationModePlaceholder = "placeholder"
)
