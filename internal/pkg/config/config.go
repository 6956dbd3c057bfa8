package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/piresc/tumpang/internal/pkg/models"
)

// InitConfig loads configuration from a local env file (when running
// locally) and the process environment
func InitConfig(configPath string) *models.Config {
	local := GetEnv("APP_ENV", "local")
	if local == "local" {
		if err := godotenv.Load(configPath); err != nil {
			log.Println("error loading config from file", err)
		}
	}
	return loadConfigFromEnv()
}

func loadConfigFromEnv() *models.Config {
	configs := &models.Config{}

	// App config
	configs.App.Name = GetEnv("APP_NAME", "tumpang")
	configs.App.Environment = GetEnv("APP_ENV", "local")
	configs.App.Version = GetEnv("APP_VERSION", "")
	configs.App.Debug = GetEnvAsBool("APP_DEBUG", false)

	// REST backend
	configs.API.BaseURL = GetEnv("API_BASE_URL", "http://localhost:8050/api/v1")
	configs.API.Timeout = GetEnvAsDuration("API_TIMEOUT", 10*time.Second)

	// Push channel
	configs.WS.URL = GetEnv("WS_URL", "ws://localhost:8050/api/v1/auth/ws")
	configs.WS.ReconnectDelay = GetEnvAsDuration("WS_RECONNECT_DELAY", 3*time.Second)

	// Polling cadences
	configs.Poll.ActiveRideInterval = GetEnvAsDuration("POLL_ACTIVE_RIDE_INTERVAL", 5*time.Second)
	configs.Poll.DisconnectedInterval = GetEnvAsDuration("POLL_DISCONNECTED_INTERVAL", 2*time.Second)
	configs.Poll.NearbyOffersInterval = GetEnvAsDuration("POLL_NEARBY_OFFERS_INTERVAL", 5*time.Second)

	// Ride coordination
	configs.Rides.OffersRadiusKm = GetEnvAsFloat("RIDES_OFFERS_RADIUS_KM", 5.0)

	// Location tracking
	configs.Location.UpdateInterval = GetEnvAsDuration("LOCATION_UPDATE_INTERVAL", 10*time.Second)
	configs.Location.GeohashPrecision = uint(GetEnvAsInt("LOCATION_GEOHASH_PRECISION", 9))

	// Credential store
	configs.Credentials.FilePath = GetEnv("CREDENTIALS_FILE_PATH", "credentials.json")

	// Logger config
	configs.Logger.Level = GetEnv("LOG_LEVEL", "info")

	// Metrics config
	configs.Metrics.Enabled = GetEnvAsBool("METRICS_ENABLED", false)
	configs.Metrics.Addr = GetEnv("METRICS_ADDR", ":9464")

	return configs
}

// Helper functions to get environment variables with different types

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}
