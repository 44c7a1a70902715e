package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	AIProvider      string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMTimeout      time.Duration
	LLMRetries      int
	LLMRetryDelay   time.Duration
	LLMCacheTTL     time.Duration

	OCRProvider           string
	OpenAIVisionModel     string
	GoogleCredentialsFile string
	OCRTimeout            time.Duration

	ServiceInitAttempts int
	ServiceInitDelay    time.Duration
	LockTTL             time.Duration
	LockPrefix          string
	BatchConcurrency    int
	EventChannel        string
	EnforceOwnership    bool
	UnknownPolicy       string
	UnknownMaxScore     float64
	RateLimitMax        int
	RateLimitWindow     time.Duration

	SeedEnabled bool
	SeedToken   string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Exam Grader API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.retries", 2)
	v.SetDefault("llm.retry_delay", "1s")
	v.SetDefault("llm.cache_ttl", "24h")
	v.SetDefault("ocr.provider", "openai")
	v.SetDefault("ocr.openai_model", "gpt-4o-mini")
	v.SetDefault("ocr.timeout", "120s")
	v.SetDefault("services.init_attempts", 2)
	v.SetDefault("services.init_delay", "1s")
	v.SetDefault("lock.ttl", "15m")
	v.SetDefault("lock.prefix", "grader:lock")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("events.channel", "grader:events")
	v.SetDefault("grading.enforce_ownership", true)
	v.SetDefault("grading.unknown_policy", "fallback")
	v.SetDefault("grading.unknown_max_score", 10)
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("seed.enabled", false)

	durations := map[string]time.Duration{}
	for _, key := range []string{"llm.timeout", "llm.retry_delay", "llm.cache_ttl", "ocr.timeout", "services.init_delay", "lock.ttl", "rate_limit.window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		JWTSecret:   v.GetString("jwt.secret"),

		AIProvider:      strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:    v.GetString("openai.api_key"),
		OpenAIModel:     v.GetString("openai.model"),
		OpenAIBaseURL:   v.GetString("openai.base_url"),
		AnthropicAPIKey: v.GetString("anthropic.api_key"),
		AnthropicModel:  v.GetString("anthropic.model"),
		LLMTimeout:      durations["llm.timeout"],
		LLMRetries:      v.GetInt("llm.retries"),
		LLMRetryDelay:   durations["llm.retry_delay"],
		LLMCacheTTL:     durations["llm.cache_ttl"],

		OCRProvider:           strings.ToLower(v.GetString("ocr.provider")),
		OpenAIVisionModel:     v.GetString("ocr.openai_model"),
		GoogleCredentialsFile: v.GetString("google.credentials_file"),
		OCRTimeout:            durations["ocr.timeout"],

		ServiceInitAttempts: v.GetInt("services.init_attempts"),
		ServiceInitDelay:    durations["services.init_delay"],
		LockTTL:             durations["lock.ttl"],
		LockPrefix:          v.GetString("lock.prefix"),
		BatchConcurrency:    v.GetInt("batch.concurrency"),
		EventChannel:        v.GetString("events.channel"),
		EnforceOwnership:    v.GetBool("grading.enforce_ownership"),
		UnknownPolicy:       strings.ToLower(v.GetString("grading.unknown_policy")),
		UnknownMaxScore:     v.GetFloat64("grading.unknown_max_score"),
		RateLimitMax:        v.GetInt("rate_limit.max"),
		RateLimitWindow:     durations["rate_limit.window"],

		SeedEnabled: v.GetBool("seed.enabled"),
		SeedToken:   v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.AIProvider {
	case "openai", "anthropic":
	default:
		return Config{}, fmt.Errorf("unsupported ai provider: %s", cfg.AIProvider)
	}

	switch cfg.OCRProvider {
	case "openai", "gcp_vision", "text":
	default:
		return Config{}, fmt.Errorf("unsupported ocr provider: %s", cfg.OCRProvider)
	}

	switch cfg.UnknownPolicy {
	case "fallback", "reject":
	default:
		return Config{}, fmt.Errorf("unsupported unknown question policy: %s", cfg.UnknownPolicy)
	}

	if cfg.LLMRetries <= 0 {
		cfg.LLMRetries = 2
	}

	if cfg.ServiceInitAttempts <= 0 {
		cfg.ServiceInitAttempts = 2
	}

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}

	if cfg.UnknownMaxScore <= 0 {
		cfg.UnknownMaxScore = 10
	}

	return cfg, nil
}
