package config

import (
	"os"
	"strings"
	"time"
)

const (
	apiURLVar       = "HOMOBIE_API_URL"
	legacyAPIURLVar = "VITE_API_BASE_URL"
	dataDirVar      = "HOMOBIE_DATA_DIR"
	timeoutVar      = "HOMOBIE_TIMEOUT"
	logLevelVar     = "LOG_LEVEL"
)

// Config holds the environment-derived settings for the portal client.
type Config struct {
	APIBaseURL     string
	DataDir        string
	RequestTimeout time.Duration
	LogLevel       string
}

// FromEnv reads the configuration from environment variables, honouring
// the legacy base-URL variable name when the canonical one is unset.
func FromEnv() Config {
	baseURL := GetEnv(apiURLVar, "")
	if baseURL == "" {
		baseURL = GetEnv(legacyAPIURLVar, "https://api.homobie.com")
	}

	return Config{
		APIBaseURL:     strings.TrimRight(baseURL, "/"),
		DataDir:        GetEnv(dataDirVar, "./data"),
		RequestTimeout: getDuration(timeoutVar, 120*time.Second),
		LogLevel:       GetEnv(logLevelVar, "info"),
	}
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
