package app

import (
	"os"
	"strconv"
	"strings"
)

// Config holds composition-time settings loaded from the environment.
type Config struct {
	LogLevel  string
	LogFormat string

	LayoutDir  string
	OutputFile string
	StatsFile  string

	CPUCoreLimit  int // 0 = scheduler default of runtime.GOMAXPROCS(0)
	QueueCapacity int // per-edge channel buffer size

	MetricsAddr string // loaded from METRICS_ADDR; no server reads it (the monitoring server uses WatchAddr)
	WatchAddr   string // websocket progress endpoint address when --watch is used

	OpenH264LibraryPath string

	OTELEndpoint   string
	OTELSampleRate float64
}

func LoadConfig() Config {
	return Config{
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		LayoutDir:  getEnv("LAYOUT_DIR", "."),
		OutputFile: getEnv("OUTPUT_FILE", "output.mp4"),
		StatsFile:  getEnv("STATS_FILE", ""),

		CPUCoreLimit:  int(getEnvInt64("CPU_CORE_LIMIT", 0)),
		QueueCapacity: int(getEnvInt64("QUEUE_CAPACITY", 4)),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		WatchAddr:   getEnv("WATCH_ADDR", ":8099"),

		OpenH264LibraryPath: getEnv("OPENH264_LIBRARY_PATH", ""),

		OTELEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELSampleRate: getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}
