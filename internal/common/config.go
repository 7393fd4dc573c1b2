package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Telegram TelegramConfig
	Database DatabaseConfig
	Extract  ExtractConfig
	LLM      LLMConfig
}

// TelegramConfig holds bot transport configuration
type TelegramConfig struct {
	Token       string
	PollTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ExtractConfig holds extraction-related configuration
type ExtractConfig struct {
	Tesseract        string
	Pdftotext        string
	TesseractLang    string
	MinDPI           int
	ArtifactCacheDir string
	Timeout          time.Duration
}

// LLMConfig holds text-transformer configuration
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Retries     int
	RetryDelay  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:       getEnv("BOT_TOKEN", ""),
			PollTimeout: getEnvAsDuration("BOT_POLL_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Extract: ExtractConfig{
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			Pdftotext:        getEnv("PDFTOTEXT_BIN", "pdftotext"),
			TesseractLang:    getEnv("TESSERACT_LANG", "rus+eng"),
			MinDPI:           getEnvAsInt("MIN_DPI", 295),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			Timeout:          getEnvAsDuration("EXTRACT_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:      getEnv("GROQ_TOKEN", ""),
			Model:       getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			Temperature: getEnvAsFloat32("GROQ_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("GROQ_TIMEOUT", 45*time.Second),
			Retries:     getEnvAsInt("GROQ_RETRIES", 3),
			RetryDelay:  getEnvAsDuration("GROQ_RETRY_DELAY", 5*time.Second),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return NewAppError("CONFIG_ERROR", "BOT_TOKEN is required", nil)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", nil)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GROQ_TOKEN is required", nil)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
