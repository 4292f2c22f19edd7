package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/opscart/k8s-gap-auditor/pkg/auditor"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/recommender"
	"sigs.k8s.io/yaml"
)

// Config holds application configuration
type Config struct {
	// Cluster
	Kubeconfig string

	// Prometheus
	PrometheusURL string

	// Recommendation
	TimeWindow          string  // Prometheus duration, e.g. 14d, 48h, 2w
	CPUPercentile       float64 // percentile of CPU usage used as CPU request
	MemoryBufferPercent float64 // added on top of peak memory usage

	// Audit
	CPUGapThreshold            float64
	MemoryGapThreshold         float64
	Workers                    int
	MaxInFlightRecommendations int
	CallTimeout                time.Duration
	FailureMode                string

	// Caching. A zero CacheTTL disables the cache.
	CacheTTL       time.Duration
	StorageEnabled bool
	DatabaseURL    string

	// Server
	ListenAddr string
}

// NewConfig creates a new configuration with defaults, overridden by environment variables
func NewConfig() *Config {
	return &Config{
		Kubeconfig:                 getEnv("KUBECONFIG", ""),
		PrometheusURL:              getEnv("PROMETHEUS_URL", "http://prometheus-k8s.monitoring:9090"),
		TimeWindow:                 getEnv("TIME_WINDOW", auditor.DefaultTimeWindow),
		CPUPercentile:              getEnvFloat("CPU_PERCENTILE", recommender.DefaultCPUPercentile),
		MemoryBufferPercent:        getEnvFloat("MEMORY_BUFFER_PERCENT", recommender.DefaultMemoryBufferPercent),
		CPUGapThreshold:            getEnvFloat("CPU_GAP_THRESHOLD", 30),
		MemoryGapThreshold:         getEnvFloat("MEMORY_GAP_THRESHOLD", 30),
		Workers:                    getEnvInt("AUDIT_WORKERS", 4),
		MaxInFlightRecommendations: getEnvInt("MAX_INFLIGHT_RECOMMENDATIONS", 2),
		CallTimeout:                getEnvDuration("CALL_TIMEOUT", 30*time.Second),
		FailureMode:                getEnv("FAILURE_MODE", string(auditor.FailFast)),
		CacheTTL:                   getEnvDuration("CACHE_TTL", 10*time.Minute),
		StorageEnabled:             getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		ListenAddr:                 getEnv("LISTEN_ADDR", ":8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// UseDevPreset configures a short window and a lighter percentile for dev clusters
func (c *Config) UseDevPreset() {
	c.TimeWindow = "3d"
	c.CPUPercentile = 90
	c.MemoryBufferPercent = 10
}

// UseProductionPreset configures the default two week window
func (c *Config) UseProductionPreset() {
	c.TimeWindow = "14d"
	c.CPUPercentile = 95
	c.MemoryBufferPercent = 15
}

// UseCriticalPreset configures a long window and conservative sizing
func (c *Config) UseCriticalPreset() {
	c.TimeWindow = "30d"
	c.CPUPercentile = 99
	c.MemoryBufferPercent = 25
}

// ApplyPreset applies a preset by name: dev, production or critical
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "":
	case "dev":
		c.UseDevPreset()
	case "production", "prod":
		c.UseProductionPreset()
	case "critical":
		c.UseCriticalPreset()
	default:
		return fmt.Errorf("unknown preset %q (want dev, production or critical)", name)
	}
	return nil
}

// fileConfig is the YAML representation. Unset fields keep their current value.
type fileConfig struct {
	Kubeconfig                 *string  `json:"kubeconfig"`
	PrometheusURL              *string  `json:"prometheusURL"`
	TimeWindow                 *string  `json:"timeWindow"`
	CPUPercentile              *float64 `json:"cpuPercentile"`
	MemoryBufferPercent        *float64 `json:"memoryBufferPercent"`
	CPUGapThreshold            *float64 `json:"cpuGapThreshold"`
	MemoryGapThreshold         *float64 `json:"memoryGapThreshold"`
	Workers                    *int     `json:"workers"`
	MaxInFlightRecommendations *int     `json:"maxInFlightRecommendations"`
	CallTimeout                *string  `json:"callTimeout"`
	FailureMode                *string  `json:"failureMode"`
	CacheTTL                   *string  `json:"cacheTTL"`
	StorageEnabled             *bool    `json:"storageEnabled"`
	DatabaseURL                *string  `json:"databaseURL"`
	ListenAddr                 *string  `json:"listenAddr"`
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.Merge(data)
}

// Merge overlays YAML (or JSON) data onto c
func (c *Config) Merge(data []byte) error {
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	setString(&c.Kubeconfig, fc.Kubeconfig)
	setString(&c.PrometheusURL, fc.PrometheusURL)
	setString(&c.TimeWindow, fc.TimeWindow)
	setString(&c.FailureMode, fc.FailureMode)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.ListenAddr, fc.ListenAddr)
	setFloat(&c.CPUPercentile, fc.CPUPercentile)
	setFloat(&c.MemoryBufferPercent, fc.MemoryBufferPercent)
	setFloat(&c.CPUGapThreshold, fc.CPUGapThreshold)
	setFloat(&c.MemoryGapThreshold, fc.MemoryGapThreshold)
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.MaxInFlightRecommendations != nil {
		c.MaxInFlightRecommendations = *fc.MaxInFlightRecommendations
	}
	if fc.StorageEnabled != nil {
		c.StorageEnabled = *fc.StorageEnabled
	}
	if err := setDuration(&c.CallTimeout, fc.CallTimeout, "callTimeout"); err != nil {
		return err
	}
	return setDuration(&c.CacheTTL, fc.CacheTTL, "cacheTTL")
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = d
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.PrometheusURL == "" {
		return fmt.Errorf("PROMETHEUS_URL must be set")
	}
	if _, err := recommender.ParseWindow(c.TimeWindow); err != nil {
		return err
	}
	if !finite(c.CPUPercentile) || c.CPUPercentile <= 0 || c.CPUPercentile > 100 {
		return fmt.Errorf("CPU percentile must be in (0, 100], got %v", c.CPUPercentile)
	}
	if !finite(c.MemoryBufferPercent) || c.MemoryBufferPercent < 0 {
		return fmt.Errorf("memory buffer must be >= 0, got %v", c.MemoryBufferPercent)
	}
	if !finite(c.CPUGapThreshold) || !finite(c.MemoryGapThreshold) || c.CPUGapThreshold < 0 || c.MemoryGapThreshold < 0 {
		return fmt.Errorf("gap thresholds must be finite and >= 0")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.MaxInFlightRecommendations < 1 {
		return fmt.Errorf("max in-flight recommendations must be at least 1")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	if _, err := auditor.ParseFailureMode(c.FailureMode); err != nil {
		return err
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache TTL must be >= 0")
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.StorageEnabled && c.CacheTTL == 0 {
		return fmt.Errorf("CACHE_TTL must be positive when storage is enabled")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AuditorOptions converts the audit settings. Call Validate first.
func (c *Config) AuditorOptions() auditor.Options {
	mode, _ := auditor.ParseFailureMode(c.FailureMode)
	return auditor.Options{
		TimeWindow:                 c.TimeWindow,
		Workers:                    c.Workers,
		MaxInFlightRecommendations: c.MaxInFlightRecommendations,
		CallTimeout:                c.CallTimeout,
		FailureMode:                mode,
	}
}

// RecommenderConfig converts the recommendation settings
func (c *Config) RecommenderConfig() recommender.Config {
	return recommender.Config{
		CPUPercentile:       c.CPUPercentile,
		MemoryBufferPercent: c.MemoryBufferPercent,
	}
}

// GapThreshold returns the configured default thresholds
func (c *Config) GapThreshold() models.GapThreshold {
	return models.GapThreshold{
		CPUPercent:    c.CPUGapThreshold,
		MemoryPercent: c.MemoryGapThreshold,
	}
}
