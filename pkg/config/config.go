// Package config provides configuration management for the metrics gateway.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port            int           `json:"port"`
	MetricsPort     int           `json:"metrics_port"`
	LogLevel        string        `json:"log_level"`
	LogFormat       string        `json:"log_format"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Kubernetes configuration
	Kubeconfig string `json:"kubeconfig,omitempty"`
	Namespace  string `json:"namespace"`

	// Prometheus configuration for metrics querying
	Prometheus PrometheusConfig `json:"prometheus"`

	// MeasurementWindow is the default window for rate-based queries
	MeasurementWindow time.Duration `json:"measurement_window"`

	// QueryCatalogFile optionally overrides the built-in PromQL templates
	QueryCatalogFile string `json:"query_catalog_file,omitempty"`

	// InventoryCacheTTL caches the node listing; zero lists nodes on every request
	InventoryCacheTTL time.Duration `json:"inventory_cache_ttl"`

	// Feature flags
	EnableCORS      bool     `json:"enable_cors"`
	CORSAllowOrigin []string `json:"cors_allow_origin,omitempty"`

	// Performance tuning
	KubernetesQPS   float32 `json:"kubernetes_qps"`
	KubernetesBurst int     `json:"kubernetes_burst"`
}

// PrometheusConfig holds the metrics backend connection settings
type PrometheusConfig struct {
	// URL is the backend root, e.g. https://thanos-querier.openshift-monitoring.svc:9091
	URL string `json:"url"`

	// ConnectTimeout bounds connection establishment; fixed for the process lifetime
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// BearerTokenFile is sent as Authorization: Bearer when readable
	BearerTokenFile string `json:"bearer_token_file,omitempty"`

	// InsecureSkipVerify disables TLS verification
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// Default configuration values
const (
	DefaultPort              = 8080
	DefaultMetricsPort       = 9090
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultNamespace         = "metrics-gateway"
	DefaultMeasurementWindow = 60 * time.Second
	DefaultInventoryCacheTTL = time.Duration(0)
	DefaultKubernetesQPS     = 50.0
	DefaultKubernetesBurst   = 100
	DefaultEnableCORS        = false

	// In OpenShift, typically: https://prometheus-k8s.openshift-monitoring.svc:9091
	DefaultPrometheusURL            = "http://localhost:9090"
	DefaultPrometheusConnectTimeout = 10 * time.Second
)

// Valid log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
	"panic": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Load reads the gateway configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvAsInt("PORT", DefaultPort),
		MetricsPort:     getEnvAsInt("METRICS_PORT", DefaultMetricsPort),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		Kubeconfig:      getEnv("KUBECONFIG", ""),
		Namespace:       getEnv("NAMESPACE", DefaultNamespace),

		Prometheus: PrometheusConfig{
			URL:                getEnv("PROMETHEUS_URL", DefaultPrometheusURL),
			ConnectTimeout:     getEnvAsDuration("PROMETHEUS_CONNECT_TIMEOUT", DefaultPrometheusConnectTimeout),
			BearerTokenFile:    getEnv("PROMETHEUS_BEARER_TOKEN_FILE", ""),
			InsecureSkipVerify: getEnvAsBool("PROMETHEUS_INSECURE_SKIP_VERIFY", false),
		},

		MeasurementWindow: getEnvAsDuration("MEASUREMENT_WINDOW", DefaultMeasurementWindow),
		QueryCatalogFile:  getEnv("QUERY_CATALOG_FILE", ""),
		InventoryCacheTTL: getEnvAsDuration("INVENTORY_CACHE_TTL", DefaultInventoryCacheTTL),

		EnableCORS:      getEnvAsBool("ENABLE_CORS", DefaultEnableCORS),
		CORSAllowOrigin: getEnvAsSlice("CORS_ALLOW_ORIGIN", []string{"*"}),
		KubernetesQPS:   getEnvAsFloat32("KUBERNETES_QPS", DefaultKubernetesQPS),
		KubernetesBurst: getEnvAsInt("KUBERNETES_BURST", DefaultKubernetesBurst),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errors []string

	// Validate port numbers
	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port: %d (must be 1-65535)", c.Port))
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		errors = append(errors, fmt.Sprintf("invalid metrics_port: %d (must be 1-65535)", c.MetricsPort))
	}
	if c.Port == c.MetricsPort {
		errors = append(errors, "port and metrics_port cannot be the same")
	}

	// Validate logging
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errors = append(errors, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, error, fatal, or panic)", c.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.LogFormat)] {
		errors = append(errors, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.LogFormat))
	}

	if c.Namespace == "" {
		errors = append(errors, "namespace cannot be empty")
	}

	// Validate Prometheus settings
	if c.Prometheus.URL == "" {
		errors = append(errors, "prometheus_url cannot be empty")
	} else if !strings.HasPrefix(c.Prometheus.URL, "http://") && !strings.HasPrefix(c.Prometheus.URL, "https://") {
		errors = append(errors, fmt.Sprintf("prometheus_url must start with http:// or https://: %s", c.Prometheus.URL))
	}
	if c.Prometheus.ConnectTimeout < 1*time.Second {
		errors = append(errors, fmt.Sprintf("prometheus_connect_timeout too short: %s (must be >= 1s)", c.Prometheus.ConnectTimeout))
	}
	if c.Prometheus.ConnectTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("prometheus_connect_timeout too long: %s (must be <= 2m)", c.Prometheus.ConnectTimeout))
	}

	// Validate measurement window
	if c.MeasurementWindow < 1*time.Second {
		errors = append(errors, fmt.Sprintf("measurement_window too short: %s (must be >= 1s)", c.MeasurementWindow))
	}
	if c.MeasurementWindow > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("measurement_window too long: %s (must be <= 24h)", c.MeasurementWindow))
	}
	if c.MeasurementWindow%time.Second != 0 {
		errors = append(errors, fmt.Sprintf("measurement_window must be a whole number of seconds: %s", c.MeasurementWindow))
	}

	// Validate inventory cache
	if c.InventoryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("inventory_cache_ttl cannot be negative: %s", c.InventoryCacheTTL))
	}
	if c.InventoryCacheTTL > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("inventory_cache_ttl too long: %s (must be <= 10m)", c.InventoryCacheTTL))
	}

	if c.ShutdownTimeout < 1*time.Second {
		errors = append(errors, fmt.Sprintf("shutdown_timeout too short: %s (must be >= 1s)", c.ShutdownTimeout))
	}

	// Validate Kubernetes client settings
	if c.KubernetesQPS <= 0 {
		errors = append(errors, fmt.Sprintf("kubernetes_qps must be positive: %f", c.KubernetesQPS))
	}
	if c.KubernetesBurst <= 0 {
		errors = append(errors, fmt.Sprintf("kubernetes_burst must be positive: %d", c.KubernetesBurst))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// MeasurementWindowSeconds returns the default window in whole seconds
func (c *Config) MeasurementWindowSeconds() int {
	return int(c.MeasurementWindow / time.Second)
}

// UseInventoryCache returns true if node listings should be cached
func (c *Config) UseInventoryCache() bool {
	return c.InventoryCacheTTL > 0
}

// getEnv returns the variable's value, or defaultVal when unset or empty
func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// parseEnv parses a set variable with parse; unset or unparsable values yield defaultVal
func parseEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	value, err := parse(raw)
	if err != nil {
		return defaultVal
	}
	return value
}

func getEnvAsInt(key string, defaultVal int) int {
	return parseEnv(key, defaultVal, strconv.Atoi)
}

func getEnvAsFloat32(key string, defaultVal float32) float32 {
	return parseEnv(key, defaultVal, func(raw string) (float32, error) {
		f, err := strconv.ParseFloat(raw, 32)
		return float32(f), err
	})
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return parseEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return parseEnv(key, defaultVal, time.ParseDuration)
}

// getEnvAsSlice splits a comma list, dropping blank items; an all-blank list yields defaultVal
func getEnvAsSlice(key string, defaultVal []string) []string {
	var items []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultVal
	}
	return items
}
