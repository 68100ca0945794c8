package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvFrontendURL   = "FRONTEND_URL"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvAppEnv        = "APP_ENV"
	EnvPort          = "PORT"
	EnvLogLevel      = "LOG_LEVEL"
	EnvAdminEmail    = "ADMIN_EMAIL"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// Environment names understood by APP_ENV.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

const (
	defaultDatabaseDSN    = "file:marketforge.db"
	defaultPort           = 5000
	defaultUserJWTExpiry  = 7 * 24 * time.Hour
	defaultAdminJWTExpiry = 24 * time.Hour
	defaultLLMBaseURL     = "https://api.openai.com/v1"
	defaultLLMModel       = "gpt-4o-mini"
	defaultLLMTimeout     = 30 * time.Second
)

// ErrMissingJWTSecret is returned when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set JWT_SECRET or `jwt.secret` in config file)")

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// Config is the full runtime configuration assembled from the YAML file and environment.
type Config struct {
	Port        int       `yaml:"port"`
	Environment string    `yaml:"environment"`
	LogLevel    string    `yaml:"log-level"`
	DatabaseDSN string    `yaml:"database-dsn"`
	FrontendURL string    `yaml:"frontend-url"`
	JWT         JWTConfig `yaml:"jwt"`
	LLM         LLMConfig `yaml:"llm"`
	Admin       Bootstrap `yaml:"admin"`
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	UserExpiry  time.Duration `yaml:"user-expiry"`
	AdminExpiry time.Duration `yaml:"admin-expiry"`
}

// LLMConfig configures the chat completion upstream.
type LLMConfig struct {
	APIKey      string        `yaml:"api-key"`
	BaseURL     string        `yaml:"base-url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

// Bootstrap describes the admin account created on first start.
type Bootstrap struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment)
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored and existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if errLoad := godotenv.Load(p); errLoad != nil {
			if errors.Is(errLoad, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, errLoad)
		}
	}
	return nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file (optional) and applies environment overrides.
// A missing JWT secret is fatal.
func Load(configPath string) (Config, error) {
	cfg := Config{}
	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !errors.Is(errRead, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	dsn, errDSN := LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return Config{}, errDSN
	}
	cfg.DatabaseDSN = dsn

	jwtCfg, errJWT := LoadJWTConfig(configPath)
	if errJWT != nil {
		return Config{}, errJWT
	}
	cfg.JWT = jwtCfg

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN, preferring DB_CONNECTION over the YAML file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultDatabaseDSN, nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return defaultDatabaseDSN, nil
}

// LoadJWTConfig loads JWT settings from the YAML config file with JWT_SECRET taking precedence.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	var result JWTConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	result.Secret = strings.TrimSpace(result.Secret)
	if result.Secret == "" {
		return JWTConfig{}, ErrMissingJWTSecret
	}
	if result.UserExpiry <= 0 {
		result.UserExpiry = defaultUserJWTExpiry
	}
	if result.AdminExpiry <= 0 {
		result.AdminExpiry = defaultAdminJWTExpiry
	}
	return result, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		if port, errParse := strconv.Atoi(v); errParse == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAppEnv)); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFrontendURL)); v != "" {
		cfg.FrontendURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIBaseURL)); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIModel)); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAdminEmail)); v != "" {
		cfg.Admin.Email = v
	}
	if v := os.Getenv(EnvAdminPassword); strings.TrimSpace(v) != "" {
		cfg.Admin.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = EnvironmentProduction
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		cfg.LLM.BaseURL = defaultLLMBaseURL
	}
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = defaultLLMTimeout
	}
	if cfg.LLM.Temperature <= 0 {
		cfg.LLM.Temperature = 0.7
	}
	cfg.Admin.Email = strings.ToLower(strings.TrimSpace(cfg.Admin.Email))
	if strings.TrimSpace(cfg.Admin.Name) == "" {
		cfg.Admin.Name = "Administrator"
	}
}
