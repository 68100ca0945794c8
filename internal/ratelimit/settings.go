package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/marketforge/marketforge/internal/settings"
)

// SettingsConfig captures rate limit settings stored in DB config.
type SettingsConfig struct {
	GenerateLimit  int
	GenerateWindow time.Duration
	LoginLimit     int
	LoginWindow    time.Duration
	RedisEnabled   bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		GenerateLimit:  internalsettings.Int(internalsettings.RateLimitGenerateKey, internalsettings.DefaultRateLimitGenerate),
		GenerateWindow: secondsDuration(internalsettings.Int(internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds)),
		LoginLimit:     internalsettings.Int(internalsettings.RateLimitLoginKey, internalsettings.DefaultRateLimitLogin),
		LoginWindow:    secondsDuration(internalsettings.Int(internalsettings.RateLimitLoginWindowSecondsKey, internalsettings.DefaultRateLimitLoginWindowSeconds)),
		RedisEnabled:   internalsettings.Bool(internalsettings.RateLimitRedisEnabledKey, false),
		RedisAddr:      internalsettings.String(internalsettings.RateLimitRedisAddrKey, ""),
		RedisPassword:  internalsettings.String(internalsettings.RateLimitRedisPasswordKey, ""),
		RedisDB:        internalsettings.Int(internalsettings.RateLimitRedisDBKey, 0),
		RedisPrefix:    internalsettings.String(internalsettings.RateLimitRedisPrefixKey, internalsettings.DefaultRateLimitRedisPrefix),
	}
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.GenerateWindow <= 0 {
		cfg.GenerateWindow = secondsDuration(internalsettings.DefaultRateLimitWindowSeconds)
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = secondsDuration(internalsettings.DefaultRateLimitLoginWindowSeconds)
	}
	return cfg
}
