package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	envVars := []string{
		"LOG_LEVEL", "LOG_FORMAT", "LAYOUT_DIR", "OUTPUT_FILE", "STATS_FILE",
		"CPU_CORE_LIMIT", "QUEUE_CAPACITY", "METRICS_ADDR", "WATCH_ADDR",
		"OPENH264_LIBRARY_PATH", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACE_SAMPLE_RATE",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"LayoutDir", cfg.LayoutDir, "."},
		{"OutputFile", cfg.OutputFile, "output.mp4"},
		{"StatsFile", cfg.StatsFile, ""},
		{"CPUCoreLimit", cfg.CPUCoreLimit, 0},
		{"QueueCapacity", cfg.QueueCapacity, 4},
		{"MetricsAddr", cfg.MetricsAddr, ""},
		{"WatchAddr", cfg.WatchAddr, ":8099"},
		{"OpenH264LibraryPath", cfg.OpenH264LibraryPath, ""},
		{"OTELEndpoint", cfg.OTELEndpoint, ""},
		{"OTELSampleRate", cfg.OTELSampleRate, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"LOG_LEVEL":                   "DEBUG",
		"LOG_FORMAT":                  "JSON",
		"LAYOUT_DIR":                  "/mnt/recordings",
		"OUTPUT_FILE":                 "/tmp/out.mp4",
		"STATS_FILE":                  "/tmp/stats.json",
		"CPU_CORE_LIMIT":              "4",
		"QUEUE_CAPACITY":              "8",
		"METRICS_ADDR":                ":9100",
		"WATCH_ADDR":                  ":9200",
		"OPENH264_LIBRARY_PATH":       "/usr/lib/libopenh264.so",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4318",
		"OTEL_TRACE_SAMPLE_RATE":      "0.5",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"LayoutDir", cfg.LayoutDir, "/mnt/recordings"},
		{"OutputFile", cfg.OutputFile, "/tmp/out.mp4"},
		{"StatsFile", cfg.StatsFile, "/tmp/stats.json"},
		{"CPUCoreLimit", cfg.CPUCoreLimit, 4},
		{"QueueCapacity", cfg.QueueCapacity, 8},
		{"MetricsAddr", cfg.MetricsAddr, ":9100"},
		{"WatchAddr", cfg.WatchAddr, ":9200"},
		{"OpenH264LibraryPath", cfg.OpenH264LibraryPath, "/usr/lib/libopenh264.so"},
		{"OTELEndpoint", cfg.OTELEndpoint, "http://collector:4318"},
		{"OTELSampleRate", cfg.OTELSampleRate, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvFloatInvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback float64
		want     float64
	}{
		{"empty string", "", 0.1, 0.1},
		{"not a number", "abc", 0.1, 0.1},
		{"out of range high", "1.5", 0.1, 0.1},
		{"out of range low", "-0.1", 0.1, 0.1},
		{"valid", "0.25", 0.1, 0.25},
		{"boundary zero", "0", 0.1, 0},
		{"boundary one", "1", 0.1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT_VAR", tt.envVal)
			got := getEnvFloat("TEST_FLOAT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvFloat(%q, %v) = %v, want %v", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg := LoadConfig()
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "debug")
	}

	t.Setenv("LOG_LEVEL", "Warn")
	cfg = LoadConfig()
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "warn")
	}
}
