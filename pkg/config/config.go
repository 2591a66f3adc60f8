package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string
	GeminiAPIKey    string
	RelayURL        string
	ChatDBPath      string
	SendRateBurst   int
	SendRatePerSec  int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("RELAY_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		RelayURL:        getEnv("RELAY_URL", "ws://localhost:8080/ws"),
		ChatDBPath:      getEnv("CHAT_DB_PATH", "artisora_chat.db"),
		SendRateBurst:   getEnvAsInt("SEND_RATE_BURST", 20),
		SendRatePerSec:  getEnvAsInt("SEND_RATE_PER_SEC", 5),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
