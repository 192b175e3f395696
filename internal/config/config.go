package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Intel      IntelConfig      `yaml:"intel" mapstructure:"intel"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Credential CredentialConfig `yaml:"credential" mapstructure:"credential"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// IntelConfig configures the intelligence client.
type IntelConfig struct {
	Provider     string      `yaml:"provider" mapstructure:"provider" validate:"oneof=gemini anthropic"`
	Model        string      `yaml:"model" mapstructure:"model"`
	PingModel    string      `yaml:"ping_model" mapstructure:"ping_model"`
	Temperature  float64     `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	RateLimitRPS float64     `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps" validate:"gte=0"`
	Retry        RetryConfig `yaml:"retry" mapstructure:"retry"`
	PromptFile   string      `yaml:"prompt_file" mapstructure:"prompt_file"`
}

// RetryConfig configures the provider retry policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=1"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	Model            string `yaml:"model" mapstructure:"model"`
	PingModel        string `yaml:"ping_model" mapstructure:"ping_model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	WebSearchMaxUses int64  `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses" validate:"gte=0"`
}

// CredentialConfig configures where the provider API key is read from.
type CredentialConfig struct {
	// KeyFile is an optional dotenv file re-read on credential reselection.
	KeyFile string `yaml:"key_file" mapstructure:"key_file"`
}

// StoreConfig configures the history backend.
type StoreConfig struct {
	Driver           string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	QueueSize        int    `yaml:"queue_size" mapstructure:"queue_size" validate:"gte=0"`
	MaxConns         int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns         int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
	FailureThreshold int    `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=0"`
	ResetTimeoutSecs int    `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs" validate:"gte=0"`
}

// SessionConfig configures request throttling and the simulated live feed.
type SessionConfig struct {
	ThrottleMs     int     `yaml:"throttle_ms" mapstructure:"throttle_ms" validate:"gte=0"`
	FeedIntervalMs int     `yaml:"feed_interval_ms" mapstructure:"feed_interval_ms" validate:"gte=10"`
	Volatility     float64 `yaml:"volatility" mapstructure:"volatility" validate:"gte=0"`
	SpreadFloor    float64 `yaml:"spread_floor" mapstructure:"spread_floor" validate:"gte=0"`
	LiquidityFloor float64 `yaml:"liquidity_floor" mapstructure:"liquidity_floor" validate:"gte=0,lte=100"`
	MinDepthSize   float64 `yaml:"min_depth_size" mapstructure:"min_depth_size" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	PingIntervalSecs int      `yaml:"ping_interval_secs" mapstructure:"ping_interval_secs" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are invisible to Unmarshal under AutomaticEnv.
	for _, key := range []string{
		"intel.model", "intel.ping_model", "intel.prompt_file",
		"gemini.key", "anthropic.key", "anthropic.base_url", "anthropic.model", "anthropic.ping_model",
		"credential.key_file",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("intel.provider", "gemini")
	v.SetDefault("intel.temperature", 0.1)
	v.SetDefault("intel.rate_limit_rps", 1)
	v.SetDefault("intel.retry.max_attempts", 2)
	v.SetDefault("intel.retry.initial_backoff_ms", 3000)
	v.SetDefault("intel.retry.multiplier", 2.0)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.web_search_max_uses", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "market-intel.db")
	v.SetDefault("store.queue_size", 256)
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.failure_threshold", 5)
	v.SetDefault("store.reset_timeout_secs", 30)
	v.SetDefault("session.throttle_ms", 2000)
	v.SetDefault("session.feed_interval_ms", 1500)
	v.SetDefault("session.volatility", 0.0005)
	v.SetDefault("session.spread_floor", 0.01)
	v.SetDefault("session.liquidity_floor", 0)
	v.SetDefault("session.min_depth_size", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.ping_interval_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks field bounds and enumerations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "config: validate")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return eris.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// ProviderKeyVar returns the environment variable holding the API key for
// the configured provider.
func (c *Config) ProviderKeyVar() string {
	if c.Intel.Provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// ProviderKey returns the statically configured key for the provider.
func (c *Config) ProviderKey() string {
	if c.Intel.Provider == "anthropic" {
		return c.Anthropic.Key
	}
	return c.Gemini.Key
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
