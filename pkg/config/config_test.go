package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/auditor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"KUBECONFIG", "PROMETHEUS_URL", "TIME_WINDOW", "CPU_PERCENTILE", "MEMORY_BUFFER_PERCENT",
	"CPU_GAP_THRESHOLD", "MEMORY_GAP_THRESHOLD", "AUDIT_WORKERS", "MAX_INFLIGHT_RECOMMENDATIONS",
	"CALL_TIMEOUT", "FAILURE_MODE", "CACHE_TTL", "STORAGE_ENABLED", "DATABASE_URL", "LISTEN_ADDR",
}

func clearEnv(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestNewConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg := NewConfig()

	assert.Equal(t, "http://prometheus-k8s.monitoring:9090", cfg.PrometheusURL)
	assert.Equal(t, "14d", cfg.TimeWindow)
	assert.Equal(t, 95.0, cfg.CPUPercentile)
	assert.Equal(t, 15.0, cfg.MemoryBufferPercent)
	assert.Equal(t, 30.0, cfg.CPUGapThreshold)
	assert.Equal(t, 30.0, cfg.MemoryGapThreshold)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2, cfg.MaxInFlightRecommendations)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, "fail-fast", cfg.FailureMode)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.False(t, cfg.StorageEnabled)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	t.Setenv("TIME_WINDOW", "2w")
	t.Setenv("CPU_GAP_THRESHOLD", "50")
	t.Setenv("AUDIT_WORKERS", "8")
	t.Setenv("CALL_TIMEOUT", "45s")
	t.Setenv("FAILURE_MODE", "continue")

	cfg := NewConfig()

	assert.Equal(t, "http://prometheus:9090", cfg.PrometheusURL)
	assert.Equal(t, "2w", cfg.TimeWindow)
	assert.Equal(t, 50.0, cfg.CPUGapThreshold)
	assert.Equal(t, 30.0, cfg.MemoryGapThreshold)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 45*time.Second, cfg.CallTimeout)

	opts := cfg.AuditorOptions()
	assert.Equal(t, auditor.CollectAndContinue, opts.FailureMode)
	assert.Equal(t, "2w", opts.TimeWindow)
	assert.Equal(t, 50.0, cfg.GapThreshold().CPUPercent)
}

func TestInvalidEnvValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_WORKERS", "many")
	t.Setenv("CPU_GAP_THRESHOLD", "high")
	t.Setenv("CACHE_TTL", "forever")

	cfg := NewConfig()

	// falls back to defaults
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30.0, cfg.CPUGapThreshold)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		preset     string
		window     string
		percentile float64
		buffer     float64
	}{
		{"dev", "3d", 90, 10},
		{"production", "14d", 95, 15},
		{"critical", "30d", 99, 25},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			clearEnv(t)
			cfg := NewConfig()
			require.NoError(t, cfg.ApplyPreset(tt.preset))

			assert.Equal(t, tt.window, cfg.TimeWindow)
			assert.Equal(t, tt.percentile, cfg.CPUPercentile)
			assert.Equal(t, tt.buffer, cfg.MemoryBufferPercent)
			assert.NoError(t, cfg.Validate())
		})
	}

	assert.Error(t, NewConfig().ApplyPreset("yolo"))
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
prometheusURL: http://thanos-query.monitoring:9090
timeWindow: 7d
cpuGapThreshold: 40
workers: 6
callTimeout: 1m
cacheTTL: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "http://thanos-query.monitoring:9090", cfg.PrometheusURL)
	assert.Equal(t, "7d", cfg.TimeWindow)
	assert.Equal(t, 40.0, cfg.CPUGapThreshold)
	assert.Equal(t, 30.0, cfg.MemoryGapThreshold, "unset fields keep their value")
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.CallTimeout)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.NoError(t, cfg.Validate())
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "prometheus: http://x"},
		{"bad duration", "callTimeout: soon"},
		{"wrong type", "workers: four"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewConfig().Merge([]byte(tt.data)))
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	err := NewConfig().LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid default config",
			setupConfig: func(c *Config) {},
		},
		{
			name:          "invalid window",
			setupConfig:   func(c *Config) { c.TimeWindow = "two weeks" },
			expectError:   true,
			errorContains: "invalid time window",
		},
		{
			name:          "percentile too high",
			setupConfig:   func(c *Config) { c.CPUPercentile = 101 },
			expectError:   true,
			errorContains: "percentile",
		},
		{
			name:        "valid edge case - percentile 100",
			setupConfig: func(c *Config) { c.CPUPercentile = 100 },
		},
		{
			name:          "negative threshold",
			setupConfig:   func(c *Config) { c.MemoryGapThreshold = -1 },
			expectError:   true,
			errorContains: "thresholds",
		},
		{
			name:          "NaN threshold",
			setupConfig:   func(c *Config) { c.CPUGapThreshold = math.NaN() },
			expectError:   true,
			errorContains: "thresholds",
		},
		{
			name:          "infinite threshold",
			setupConfig:   func(c *Config) { c.MemoryGapThreshold = math.Inf(1) },
			expectError:   true,
			errorContains: "thresholds",
		},
		{
			name:          "NaN percentile",
			setupConfig:   func(c *Config) { c.CPUPercentile = math.NaN() },
			expectError:   true,
			errorContains: "percentile",
		},
		{
			name:        "valid edge case - zero threshold",
			setupConfig: func(c *Config) { c.CPUGapThreshold = 0 },
		},
		{
			name:          "no workers",
			setupConfig:   func(c *Config) { c.Workers = 0 },
			expectError:   true,
			errorContains: "workers",
		},
		{
			name:          "unknown failure mode",
			setupConfig:   func(c *Config) { c.FailureMode = "retry" },
			expectError:   true,
			errorContains: "failure mode",
		},
		{
			name: "storage without database URL",
			setupConfig: func(c *Config) {
				c.StorageEnabled = true
				c.DatabaseURL = ""
			},
			expectError:   true,
			errorContains: "DATABASE_URL",
		},
		{
			name: "storage without TTL",
			setupConfig: func(c *Config) {
				c.StorageEnabled = true
				c.DatabaseURL = "postgres://test"
				c.CacheTTL = 0
			},
			expectError:   true,
			errorContains: "CACHE_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := NewConfig()
			tt.setupConfig(cfg)

			err := cfg.Validate()

			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestStorageConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_ENABLED", "true")
	t.Setenv("DATABASE_URL", "postgres://test")

	cfg := NewConfig()

	assert.True(t, cfg.StorageEnabled)
	assert.Equal(t, "postgres://test", cfg.DatabaseURL)
	assert.NoError(t, cfg.Validate())
}
