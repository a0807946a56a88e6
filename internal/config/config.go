package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Research ResearchConfig
	Storage  StorageConfig
}

type AppConfig struct {
	Port               string
	Environment        string `validate:"oneof=development production test"`
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	HuggingFace  string
}

type AIConfig struct {
	LLMProvider        string `validate:"oneof=ollama huggingface gemini"`
	LLMModel           string `validate:"required"`
	OllamaBaseURL      string
	HuggingFaceBaseURL string
	MaxRetries         int           `validate:"gte=1,lte=10"`
	RetryDelay         time.Duration `validate:"gte=0"`
	BackoffBase        float64       `validate:"gte=1,lte=10"`
}

type ResearchConfig struct {
	MaxStages      int           `validate:"gte=1,lte=6"`
	RateLimitDelay time.Duration `validate:"gte=0"`
	MinConfidence  float64       `validate:"gte=0,lte=1"`
}

type StorageConfig struct {
	Backend         string `validate:"oneof=file memory redis postgres"`
	SessionsDir     string `validate:"required_if=Backend file"`
	ReportsDir      string `validate:"required"`
	FilePermissions os.FileMode
	ListLimit       int `validate:"gte=1"`
	RetentionDays   int `validate:"gte=0"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/research.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			HuggingFaceBaseURL: getEnv("HUGGINGFACE_BASE_URL", ""),
			MaxRetries:         getEnvAsInt("LLM_MAX_RETRIES", 3),
			RetryDelay:         getEnvAsDuration("LLM_RETRY_DELAY", time.Second),
			BackoffBase:        getEnvAsFloat("LLM_BACKOFF_BASE", 2.0),
		},
		Research: ResearchConfig{
			MaxStages:      getEnvAsInt("RESEARCH_MAX_STAGES", 6),
			RateLimitDelay: getEnvAsDuration("RESEARCH_RATE_LIMIT_DELAY", time.Second),
			MinConfidence:  getEnvAsFloat("RESEARCH_MIN_CONFIDENCE", 0.1),
		},
		Storage: StorageConfig{
			Backend:         getEnv("SESSION_BACKEND", "file"),
			SessionsDir:     getEnv("SESSIONS_DIR", "./data/sessions"),
			ReportsDir:      getEnv("REPORTS_DIR", "./data/reports"),
			FilePermissions: getEnvAsFileMode("SESSION_FILE_PERMISSIONS", 0o600),
			ListLimit:       getEnvAsInt("SESSION_LIST_LIMIT", 20),
			RetentionDays:   getEnvAsInt("SESSION_RETENTION_DAYS", 30),
		},
	}
}

// Validate checks the loaded values against their struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("1.5").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil && value >= 0 {
		return value
	}
	if seconds, err := strconv.ParseFloat(strValue, 64); err == nil && seconds >= 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return fallback
}

// getEnvAsFileMode parses an octal permission string such as "0600".
func getEnvAsFileMode(key string, fallback os.FileMode) os.FileMode {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseUint(strValue, 8, 32); err == nil && value <= 0o777 {
		return os.FileMode(value)
	}
	return fallback
}
