package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	ChainRPCURL      string
	ContractAddress  string
	ChainPrivateKey  string
	InternalAPIKey   string
	DBMaxRetries     int
	DBRetryDelay     time.Duration
	PollInterval     time.Duration
	OutboxMaxRetries int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	chainRPC := getEnv("CHAIN_RPC_URL", "")
	contractAddr := getEnv("CHAIN_CONTRACT_ADDRESS", "")
	chainKey := getEnv("CHAIN_PRIVATE_KEY", "")
	apiKey := getEnv("INTERNAL_API_KEY", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if chainRPC == "" {
		return nil, fmt.Errorf("CHAIN_RPC_URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}

	return &Config{
		Port:             port,
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		ChainRPCURL:      chainRPC,
		ContractAddress:  contractAddr,
		ChainPrivateKey:  chainKey,
		InternalAPIKey:   apiKey,
		DBMaxRetries:     getEnvInt("DB_MAX_RETRIES", 5),
		DBRetryDelay:     time.Duration(getEnvInt("DB_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		OutboxMaxRetries: getEnvInt("OUTBOX_MAX_RETRIES", 5),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
