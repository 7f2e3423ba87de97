// Package config loads process-level settings for cmd/interceptdemo from
// environment variables, the same envStr/envInt/envBool-with-fallback
// shape the teacher's own config loader used for its server process.
package config

import (
	"os"
	"strconv"

	"github.com/patchwire/intercept/internal/telemetry"
)

// Config holds the demo process's environment-driven defaults. Flags on
// cmd/interceptdemo's command line take precedence over these when both
// are supplied.
type Config struct {
	IntrospectAddr string
	Telemetry      telemetry.Config
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		IntrospectAddr: envStr("INTERCEPT_INTROSPECT_ADDR", ""),
		Telemetry: telemetry.Config{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "intercept-demo"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
