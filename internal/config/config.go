package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MaxTokenTTL caps the realtime access token validity. Tokens are scoped to a
// single room and must not outlive the call by more than an hour.
const MaxTokenTTL = time.Hour

// Config contains all runtime settings for the voice gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	CORSAllowedOrigins []string

	AuthJWTSecret string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	TokenTTL         time.Duration

	SessionInactivityTimeout time.Duration
	ConnectingTimeout        time.Duration

	DatabaseURL string

	DefaultInstructions    string
	DefaultVoiceID         string
	DefaultTemperature     float64
	DefaultMaxOutputTokens int
	DefaultSTTLanguage     string
	DefaultSTTModel        string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicegate"),
		AuthJWTSecret:    trimmedEnv("AUTH_JWT_SECRET"),
		LiveKitURL:       trimmedEnv("LIVEKIT_URL"),
		LiveKitAPIKey:    trimmedEnv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: trimmedEnv("LIVEKIT_API_SECRET"),
		DatabaseURL:      trimmedEnv("DATABASE_URL"),

		DefaultInstructions:    envOrDefault("DEFAULT_INSTRUCTIONS", "You are a medical assistant. Help the user with their medical questions."),
		DefaultVoiceID:         envOrDefault("DEFAULT_VOICE_ID", "alloy"),
		DefaultTemperature:     0.8,
		DefaultMaxOutputTokens: 2048,
		DefaultSTTLanguage:     envOrDefault("DEFAULT_STT_LANGUAGE", "en"),
		DefaultSTTModel:        envOrDefault("DEFAULT_STT_MODEL", "whisper-1"),

		ShutdownTimeout:          15 * time.Second,
		TokenTTL:                 time.Hour,
		SessionInactivityTimeout: 2 * time.Minute,
		ConnectingTimeout:        15 * time.Second,
	}

	if origins := trimmedEnv("APP_CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("LIVEKIT_TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectingTimeout, err = durationFromEnv("APP_CONNECTING_TIMEOUT", cfg.ConnectingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultTemperature, err = floatFromEnv("DEFAULT_TEMPERATURE", cfg.DefaultTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultMaxOutputTokens, err = intFromEnv("DEFAULT_MAX_OUTPUT_TOKENS", cfg.DefaultMaxOutputTokens)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("LIVEKIT_TOKEN_TTL must be positive")
	}
	if cfg.TokenTTL > MaxTokenTTL {
		cfg.TokenTTL = MaxTokenTTL
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ConnectingTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_CONNECTING_TIMEOUT must be positive")
	}
	if cfg.DefaultTemperature < 0 || cfg.DefaultTemperature > 2 {
		return Config{}, fmt.Errorf("DEFAULT_TEMPERATURE must be within [0, 2]")
	}
	if cfg.DefaultMaxOutputTokens <= 0 {
		return Config{}, fmt.Errorf("DEFAULT_MAX_OUTPUT_TOKENS must be positive")
	}

	return cfg, nil
}

// ValidateRealtime checks the settings required for minting room tokens.
// Kept separate from Load so tests and tooling can run without credentials.
func (c Config) ValidateRealtime() error {
	if c.LiveKitURL == "" {
		return fmt.Errorf("LIVEKIT_URL is required")
	}
	if c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
