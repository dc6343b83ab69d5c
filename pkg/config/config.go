package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GitHub   GitHubConfig
	Sync     SyncConfig
	Kafka    KafkaConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	AdminToken   string
}

type DatabaseConfig struct {
	Path string
}

type GitHubConfig struct {
	Token          string
	APIURL         string
	RequestTimeout time.Duration
}

// SyncConfig drives the periodic bounty crawl
type SyncConfig struct {
	Query         string
	Languages     []string
	MinAmount     int64
	PerPage       int
	MaxPages      int
	Schedule      string
	PageDelay     time.Duration
	RateThreshold int
	Workers       int
	PollInterval  time.Duration
	RepositoryTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

var AppConfig *Config

// Load loads configuration from .env file and environment variables
func Load() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = FromEnv()
	return nil
}

// FromEnv builds a Config from the current environment without touching .env files
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 15),
			AdminToken:   getEnv("ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./bountyscope.db"),
		},
		GitHub: GitHubConfig{
			Token:          getEnv("GITHUB_TOKEN", ""),
			APIURL:         getEnv("GITHUB_API_URL", "https://api.github.com/"),
			RequestTimeout: getEnvAsDuration("GITHUB_REQUEST_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			Query:         getEnv("SYNC_QUERY", "bounty OR reward OR prize"),
			Languages:     getEnvAsList("SYNC_LANGUAGES"),
			MinAmount:     int64(getEnvAsInt("SYNC_MIN_AMOUNT", 5000)),
			PerPage:       getEnvAsInt("SYNC_PER_PAGE", 50),
			MaxPages:      getEnvAsInt("SYNC_MAX_PAGES", 5),
			Schedule:      getEnv("SYNC_SCHEDULE", "@every 6h"),
			PageDelay:     getEnvAsDuration("SYNC_PAGE_DELAY", time.Second),
			RateThreshold: getEnvAsInt("SYNC_RATE_THRESHOLD", 10),
			Workers:       getEnvAsInt("CRAWL_WORKERS", 1),
			PollInterval:  getEnvAsDuration("CRAWL_POLL_INTERVAL", 10*time.Second),
			RepositoryTTL: getEnvAsDuration("REPOSITORY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "bounty-issues"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("30s", "6h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
