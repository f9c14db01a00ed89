package config_test

import (
	"testing"
	"time"

	"github.com/homobie/portal-go/internal/config"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("HOMOBIE_API_URL", "")
	t.Setenv("VITE_API_BASE_URL", "")

	cfg := config.FromEnv()
	require.Equal(t, "https://api.homobie.com", cfg.APIBaseURL)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, 120*time.Second, cfg.RequestTimeout)
}

func TestFromEnvCanonicalWinsOverLegacy(t *testing.T) {
	t.Setenv("HOMOBIE_API_URL", "https://canonical.example/")
	t.Setenv("VITE_API_BASE_URL", "https://legacy.example")

	cfg := config.FromEnv()
	require.Equal(t, "https://canonical.example", cfg.APIBaseURL, "trailing slash trimmed")
}

func TestFromEnvLegacyAlias(t *testing.T) {
	t.Setenv("HOMOBIE_API_URL", "")
	t.Setenv("VITE_API_BASE_URL", "https://legacy.example")

	cfg := config.FromEnv()
	require.Equal(t, "https://legacy.example", cfg.APIBaseURL)
}

func TestFromEnvBadTimeoutFallsBack(t *testing.T) {
	t.Setenv("HOMOBIE_TIMEOUT", "soon")

	cfg := config.FromEnv()
	require.Equal(t, 120*time.Second, cfg.RequestTimeout)
}
