package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	LogLevel string

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string

	JWTSecret     string
	JWTExpiry     time.Duration
	EncryptionKey string
	ClientURL     string

	AdminName     string
	AdminEmail    string
	AdminPassword string

	UploadDir      string
	UploadMaxBytes int64

	InferenceProvider  string
	InferenceBaseURL   string
	InferenceAPIKey    string
	InferenceModel     string
	InferenceTimeout   time.Duration
	InferenceMaxTokens int
	ExtractorURL       string
	ExtractorTimeout   time.Duration
	BatchConcurrency   int
	GradingMarkerTTL   time.Duration
	RateLimitMax       int
	RateLimitWindow    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// legacyNames are unprefixed variable names still honoured for existing deployments.
var legacyNames = map[string][]string{
	"jwt.secret":         {"JWT_SECRET"},
	"encryption.key":     {"ENCRYPTION_KEY"},
	"database.url":       {"DATABASE_URL", "MONGO_URI"},
	"client.url":         {"CLIENT_URL"},
	"inference.base_url": {"INFERENCE_BASE_URL", "OLLAMA_URL"},
	"redis.url":          {"REDIS_URL"},
	"nats.url":           {"NATS_URL"},
	"app.port":           {"PORT"},
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AUTOEVAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, names := range legacyNames {
		prefixed := "AUTOEVAL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("app.name", "Auto Eval API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("nats.subject", "autoeval.corrections")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("client.url", "http://localhost:3000")
	v.SetDefault("admin.name", "Administrator")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("inference.provider", "ollama")
	v.SetDefault("inference.base_url", "http://localhost:11434")
	v.SetDefault("inference.model", "llama3")
	v.SetDefault("inference.timeout", "120s")
	v.SetDefault("inference.max_tokens", 2048)
	v.SetDefault("extractor.timeout", "60s")
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("grading.marker_ttl", "")
	v.SetDefault("rate_limit.max", 120)
	v.SetDefault("rate_limit.window", "1m")

	durations := map[string]time.Duration{}
	for _, key := range []string{"jwt.expiry", "inference.timeout", "extractor.timeout", "rate_limit.window"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = parsed
	}

	// Markers outlive the slowest inference call unless configured otherwise.
	markerTTL := 2 * durations["inference.timeout"]
	if raw := v.GetString("grading.marker_ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid grading.marker_ttl %q", raw)
		}
		markerTTL = parsed
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		LogLevel:           strings.ToLower(v.GetString("log.level")),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		NATSSubject:        v.GetString("nats.subject"),
		JWTSecret:          v.GetString("jwt.secret"),
		JWTExpiry:          durations["jwt.expiry"],
		EncryptionKey:      v.GetString("encryption.key"),
		ClientURL:          v.GetString("client.url"),
		AdminName:          v.GetString("admin.name"),
		AdminEmail:         strings.TrimSpace(v.GetString("admin.email")),
		AdminPassword:      v.GetString("admin.password"),
		UploadDir:          v.GetString("upload.dir"),
		UploadMaxBytes:     v.GetInt64("upload.max_mb") * 1024 * 1024,
		InferenceProvider:  strings.ToLower(v.GetString("inference.provider")),
		InferenceBaseURL:   v.GetString("inference.base_url"),
		InferenceAPIKey:    v.GetString("inference.api_key"),
		InferenceModel:     v.GetString("inference.model"),
		InferenceTimeout:   durations["inference.timeout"],
		InferenceMaxTokens: v.GetInt("inference.max_tokens"),
		ExtractorURL:       v.GetString("extractor.url"),
		ExtractorTimeout:   durations["extractor.timeout"],
		BatchConcurrency:   v.GetInt("batch.concurrency"),
		GradingMarkerTTL:   markerTTL,
		RateLimitMax:       v.GetInt("rate_limit.max"),
		RateLimitWindow:    durations["rate_limit.window"],
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("encryption key must be provided")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("batch concurrency must be positive")
	}
	if c.InferenceMaxTokens <= 0 {
		return fmt.Errorf("inference max tokens must be positive")
	}
	if c.InferenceModel == "" {
		return fmt.Errorf("inference model must be provided")
	}
	if c.AdminEmail != "" && len(c.AdminPassword) < 8 {
		return fmt.Errorf("admin password must be at least 8 characters")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	switch c.InferenceProvider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unsupported inference provider %q", c.InferenceProvider)
	}

	return nil
}
