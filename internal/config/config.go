package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey          string
	GeminiModel           string
	GeminiMaxOutputTokens int
	AssistantTimeout      time.Duration

	DatabaseURL    string
	DatabaseDriver string

	HTTPAddr string
	LogLevel string

	SpeechAPIKey     string
	SpeechLanguage   string
	SpeechSampleRate int

	HistoryLoadAttempts int
	HistoryLoadBackoff  time.Duration
}

// LoadConfig reads .env (when present) and the process environment.
// API keys are not required here; the components that need them check.
func LoadConfig() *Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment only.
func FromEnv() *Config {
	return &Config{
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiMaxOutputTokens: getEnvAsInt("GEMINI_MAX_OUTPUT_TOKENS", 2048),
		AssistantTimeout:      getEnvAsDuration("ASSISTANT_TIMEOUT", 60*time.Second),

		DatabaseURL:    getEnv("DATABASE_URL", "orchidream.db"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite3"),

		HTTPAddr: getEnv("HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		SpeechAPIKey:     getEnv("SPEECH_API_KEY", ""),
		SpeechLanguage:   getEnv("SPEECH_LANGUAGE", "en-US"),
		SpeechSampleRate: getEnvAsInt("SPEECH_SAMPLE_RATE", 44100),

		HistoryLoadAttempts: getEnvAsInt("HISTORY_LOAD_ATTEMPTS", 3),
		HistoryLoadBackoff:  getEnvAsDuration("HISTORY_LOAD_BACKOFF", 100*time.Millisecond),
	}
}

func (c *Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
