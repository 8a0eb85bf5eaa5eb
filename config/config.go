// Package config loads orchestrator settings from YAML with ORCH_ environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/selection"
	"github.com/XXueTu/site_orchestrator/domain/synthesis"
)

// storage drivers
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// latency modes
const (
	LatencyNone  = "none"
	LatencyFixed = "fixed"
	LatencyRange = "range"
)

// Config orchestrator configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Bus          BusConfig          `yaml:"bus"`
	Latency      LatencyConfig      `yaml:"latency"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Optimization OptimizationConfig `yaml:"optimization"`
	PlansFile    string             `yaml:"plans_file"`
	Trace        TraceConfig        `yaml:"trace"`
}

// ServerConfig HTTP server
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig persistence backend
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// BusConfig message bus delivery
type BusConfig struct {
	Async     bool `yaml:"async"`
	QueueSize int  `yaml:"queue_size"`
}

// LatencyConfig simulated external system latency
type LatencyConfig struct {
	Mode    string  `yaml:"mode"`
	Scale   float64 `yaml:"scale"`
	FixedMs int     `yaml:"fixed_ms"`
}

// RetryConfig agent retry policy
type RetryConfig struct {
	MaxAutoRetries    int           `yaml:"max_auto_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
}

// OrchestratorConfig workflow execution
type OrchestratorConfig struct {
	BatchSize      int         `yaml:"batch_size"`
	MaxConcurrency int         `yaml:"max_concurrency"`
	Retry          RetryConfig `yaml:"retry"`

	// synthesis weights by dimension; empty keeps the plan weights
	Weights map[string]float64 `yaml:"weights"`

	// terminal workflows older than WorkflowRetention are evicted from memory
	// every CleanupInterval; zero disables the cleanup
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	WorkflowRetention time.Duration `yaml:"workflow_retention"`
}

// OptimizationConfig portfolio ranking
type OptimizationConfig struct {
	Objective  string `yaml:"objective"`
	ScriptPath string `yaml:"script_path"`
}

// TraceConfig event persistence batching
type TraceConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig in-memory storage, synchronous bus and scaled range latency
func DefaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Storage: StorageConfig{Driver: DriverMemory},
		Bus:     BusConfig{QueueSize: 256},
		Latency: LatencyConfig{Mode: LatencyRange, Scale: 0.1},
		Orchestrator: OrchestratorConfig{
			BatchSize:      10,
			MaxConcurrency: 10,
			Retry: RetryConfig{
				RetryDelay:        100 * time.Millisecond,
				BackoffMultiplier: 2.0,
				MaxRetryDelay:     2 * time.Second,
			},
			CleanupInterval:   time.Minute,
			WorkflowRetention: time.Hour,
		},
		Optimization: OptimizationConfig{Objective: string(selection.ObjectiveBalanced)},
		Trace:        TraceConfig{BatchSize: 100, FlushInterval: time.Second},
	}
}

// Load reads path over the defaults (skipped when empty), then applies
// environment overrides and validates
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from ORCH_ environment variables
func (c *Config) ApplyEnv() error {
	c.Storage.Driver = getEnv("ORCH_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnv("ORCH_STORAGE_DSN", c.Storage.DSN)
	c.Latency.Mode = getEnv("ORCH_LATENCY_MODE", c.Latency.Mode)
	c.Optimization.Objective = getEnv("ORCH_OBJECTIVE", c.Optimization.Objective)
	c.Optimization.ScriptPath = getEnv("ORCH_SCRIPT_PATH", c.Optimization.ScriptPath)
	c.PlansFile = getEnv("ORCH_PLANS_FILE", c.PlansFile)

	var err error
	if c.Server.Port, err = getEnvInt("ORCH_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Orchestrator.BatchSize, err = getEnvInt("ORCH_BATCH_SIZE", c.Orchestrator.BatchSize); err != nil {
		return err
	}
	if c.Orchestrator.MaxConcurrency, err = getEnvInt("ORCH_MAX_CONCURRENCY", c.Orchestrator.MaxConcurrency); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("ORCH_LATENCY_SCALE"); ok {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ORCH_LATENCY_SCALE %q: %w", v, err)
		}
		c.Latency.Scale = scale
	}
	if v, ok := os.LookupEnv("ORCH_BUS_ASYNC"); ok {
		async, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ORCH_BUS_ASYNC %q: %w", v, err)
		}
		c.Bus.Async = async
	}
	return nil
}

// Validate checks enumerations and ranges
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverMySQL, DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage driver %s requires a dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Latency.Mode {
	case LatencyNone, LatencyRange:
	case LatencyFixed:
		if c.Latency.FixedMs < 0 {
			return fmt.Errorf("negative fixed latency %d", c.Latency.FixedMs)
		}
	default:
		return fmt.Errorf("unknown latency mode %q", c.Latency.Mode)
	}
	if c.Orchestrator.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Orchestrator.BatchSize)
	}
	if c.Orchestrator.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.Orchestrator.MaxConcurrency)
	}
	if c.Orchestrator.CleanupInterval < 0 || c.Orchestrator.WorkflowRetention < 0 {
		return fmt.Errorf("cleanup interval and workflow retention must not be negative")
	}
	if _, err := c.SynthesisWeights(); err != nil {
		return err
	}
	objective, err := selection.ParseObjective(c.Optimization.Objective)
	if err != nil {
		return err
	}
	if objective == selection.ObjectiveScripted && c.Optimization.ScriptPath == "" {
		return fmt.Errorf("scripted objective requires optimization.script_path")
	}
	return nil
}

// Objective parsed optimization objective
func (c *Config) Objective() selection.Objective {
	objective, err := selection.ParseObjective(c.Optimization.Objective)
	if err != nil {
		return selection.ObjectiveBalanced
	}
	return objective
}

// SynthesisWeights configured weights, nil when none are set
func (c *Config) SynthesisWeights() (synthesis.Weights, error) {
	if len(c.Orchestrator.Weights) == 0 {
		return nil, nil
	}
	weights := make(synthesis.Weights, len(c.Orchestrator.Weights))
	for name, weight := range c.Orchestrator.Weights {
		weights[agent.Dimension(name)] = weight
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator.weights: %w", err)
	}
	return weights, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
