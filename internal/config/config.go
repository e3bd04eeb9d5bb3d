package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	GeminiAPIKey   string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDims  int

	DatabaseDriver string
	DatabaseURL    string

	HTTPPort string
	LogLevel string

	JWTSecret         string
	AdminPassword     string
	AdminPasswordHash string

	PortfolioFile     string
	ChatHistoryWindow int
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-2.5-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDims:  getEnvAsInt("EMBEDDING_DIMENSIONS", 768),

		DatabaseDriver: getEnv("DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:    getEnv("DATABASE_URL", "portfolio_agent.db"),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		PortfolioFile:     getEnv("PORTFOLIO_FILE", ""),
		ChatHistoryWindow: getEnvAsInt("CHAT_HISTORY_WINDOW", 20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.New("DATABASE_DRIVER must be one of: sqlite, postgres")
	}
	if c.EmbeddingDims <= 0 {
		return errors.New("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.ChatHistoryWindow <= 0 || c.ChatHistoryWindow > 100 {
		c.ChatHistoryWindow = 20
	}
	return nil
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
