// Package config loads process configuration from environment variables,
// optionally seeded from a .env file via godotenv. There is no hot
// reload: configuration is read once at process startup, matching the
// lifetime of a ring or broker process, which never outlives one exec.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	envBrokerSocket     = "SHMRING_BROKER_SOCKET"
	envAttachRetries    = "SHMRING_ATTACH_RETRIES"
	envAttachInterval   = "SHMRING_ATTACH_INTERVAL_MS"
	envDefaultSlotCount = "SHMRING_SLOT_COUNT"
	envDefaultSlotSize  = "SHMRING_SLOT_SIZE"
	envLogLevel         = "SHMRING_LOG_LEVEL"
	envMetricsAddr      = "SHMRING_METRICS_ADDR"

	defaultBrokerSocket     = "/tmp/ipc_daemon.sock"
	defaultAttachRetries    = 20
	defaultAttachIntervalMs = 100
	defaultSlotCount        = 8
	defaultSlotSize         = 256
	defaultLogLevel         = "info"
	defaultMetricsAddr      = ":9090"
)

// Config holds every knob a ringctl/ringd process reads at startup.
type Config struct {
	BrokerSocket   string
	AttachRetries  int
	AttachInterval time.Duration
	SlotCount      uint32
	SlotSize       uint32
	LogLevel       string
	MetricsAddr    string
}

// Load reads a .env file if present (missing is not an error) and then
// overlays real environment variables, returning a Config with defaults
// filled in for anything unset.
func Load() Config {
	godotenv.Load()

	return Config{
		BrokerSocket:   getString(envBrokerSocket, defaultBrokerSocket),
		AttachRetries:  getInt(envAttachRetries, defaultAttachRetries),
		AttachInterval: time.Duration(getInt(envAttachInterval, defaultAttachIntervalMs)) * time.Millisecond,
		SlotCount:      uint32(getInt(envDefaultSlotCount, defaultSlotCount)),
		SlotSize:       uint32(getInt(envDefaultSlotSize, defaultSlotSize)),
		LogLevel:       getString(envLogLevel, defaultLogLevel),
		MetricsAddr:    getString(envMetricsAddr, defaultMetricsAddr),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
