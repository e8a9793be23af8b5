package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config stores environment-driven settings for the server.
type Config struct {
	// ConfigPath is the path to the YAML configuration file; empty selects the embedded default.
	ConfigPath string `env:"GRADES_CONFIG"`
	// LogLevel sets the logger level.
	LogLevel string `env:"GRADES_LOG_LEVEL" envDefault:"info"`
	// Lang selects message language for templates.
	Lang string `env:"GRADES_LANG" envDefault:"en"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"GRADES_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// StoreDriver selects the store engine (postgres or memory).
	StoreDriver string `env:"GRADES_STORE_DRIVER" envDefault:"postgres"`
	// DatabaseURL is the PostgreSQL DSN.
	DatabaseURL string `env:"GRADES_DATABASE_URL"`
	// DBMaxOpenConns limits open connections.
	DBMaxOpenConns int `env:"GRADES_DB_MAX_OPEN_CONNS" envDefault:"10"`
	// DBMaxIdleConns limits idle connections.
	DBMaxIdleConns int `env:"GRADES_DB_MAX_IDLE_CONNS" envDefault:"5"`
	// DBConnMaxLifetime recycles connections.
	DBConnMaxLifetime time.Duration `env:"GRADES_DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	// RedisAddr enables the Redis audit stream when set.
	RedisAddr string `env:"GRADES_REDIS_ADDR"`
	// RedisPassword authenticates to Redis.
	RedisPassword string `env:"GRADES_REDIS_PASSWORD"`
	// JWTSecret enables HS256 bearer tokens on the REST API.
	JWTSecret string `env:"GRADES_JWT_SECRET"`
	// GeminiAPIKey enables the Gemini translator.
	GeminiAPIKey string `env:"GRADES_GEMINI_API_KEY"`
	// GeminiModel overrides the configured model.
	GeminiModel string `env:"GRADES_GEMINI_MODEL"`
}

// Load reads an optional .env file and parses environment variables into Config.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, name := range files {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return env.ParseAs[Config]()
}
