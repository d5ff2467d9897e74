package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Annotation client
	ServerURL          string
	UserName           string
	ProjectID          int64
	DocumentID         int64
	Viewport           string
	ViewportType       string
	RecommenderEnabled bool
	SendBufferSize     int
	HandshakeTimeout   time.Duration

	// Development broker
	BrokerHost        string
	BrokerPort        string
	IdleTimeout       time.Duration
	JournalKeepFrames int

	// Optional relay and journal; empty disables them
	RedisAddr    string
	RedisChannel string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerURL:          getEnv("ANNOSYNC_URL", "ws://localhost:8080/ws"),
		UserName:           getEnv("ANNOSYNC_USER", "anonymous"),
		ProjectID:          getEnvInt64("ANNOSYNC_PROJECT_ID", 0),
		DocumentID:         getEnvInt64("ANNOSYNC_DOCUMENT_ID", 0),
		Viewport:           getEnv("ANNOSYNC_VIEWPORT", "0-9"),
		ViewportType:       getEnv("ANNOSYNC_VIEWPORT_TYPE", "editor"),
		RecommenderEnabled: getEnvBool("ANNOSYNC_RECOMMENDER", false),
		SendBufferSize:     getEnvInt("SEND_BUFFER_SIZE", 256),
		HandshakeTimeout:   getEnvDuration("ANNOSYNC_HANDSHAKE_TIMEOUT", 10*time.Second),

		BrokerHost:        getEnv("BROKER_HOST", "localhost"),
		BrokerPort:        getEnv("BROKER_PORT", "8080"),
		IdleTimeout:       getEnvDuration("BROKER_IDLE_TIMEOUT", 5*time.Minute),
		JournalKeepFrames: getEnvInt("JOURNAL_KEEP_FRAMES", 10000),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "annosync:topics"),
		DBHost:       getEnv("DB_HOST", ""),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "annosync"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
	}

	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", cfg.SendBufferSize)
	}

	return cfg, nil
}

// JournalEnabled reports whether a database is configured for the frame journal
func (c *Config) JournalEnabled() bool {
	return c.DBHost != ""
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) BrokerAddr() string {
	return c.BrokerHost + ":" + c.BrokerPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseInt(value, 10, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
