// Package config resolves the server's runtime settings from, in order
// of precedence, CLI flags, process environment, an optional .env file,
// and finally hardcoded defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func init() {
	// Best effort: a missing .env is not an error, this server runs fine
	// purely off flags/environment/defaults.
	_ = godotenv.Load()
}

// Config is the fully resolved runtime configuration.
type Config struct {
	ListenAddr    string
	MetricsAddr   string
	MaxFrameBytes int
}

// Resolve builds a Config from the positional port argument and the
// --metrics-addr flag value (empty string if the flag wasn't set),
// layering in ROOMRELAY_* environment variables and defaults.
func Resolve(port, metricsAddrFlag string) (Config, error) {
	const (
		envListenAddr    = "ROOMRELAY_ADDR"
		envMetricsAddr   = "ROOMRELAY_METRICS_ADDR"
		envMaxFrameBytes = "ROOMRELAY_MAX_FRAME_BYTES"

		defaultMetricsAddr   = ":9090"
		defaultMaxFrameBytes = 64 * 1024
	)

	if port == "" {
		return Config{}, fmt.Errorf("port is required")
	}

	listenAddr := getEnvString(envListenAddr, ":"+port)
	metricsAddr := getEnvString(envMetricsAddr, defaultMetricsAddr)
	if metricsAddrFlag != "" {
		metricsAddr = metricsAddrFlag
	}

	maxFrameBytes, err := getEnvIntStrict(envMaxFrameBytes, defaultMaxFrameBytes)
	if err != nil {
		return Config{}, err
	}
	if maxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s: %d", envMaxFrameBytes, maxFrameBytes)
	}

	return Config{
		ListenAddr:    listenAddr,
		MetricsAddr:   metricsAddr,
		MaxFrameBytes: maxFrameBytes,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntStrict(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
	return parsed, nil
}
