// =============================================================================
// AgentMesh Configuration Loader
// =============================================================================
// Unified configuration loading: YAML file + environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentmesh.yaml").
//	    WithEnvPrefix("AGENTMESH").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	// Runtime configures the dispatcher.
	Runtime RuntimeConfig `yaml:"runtime" env:"RUNTIME"`

	// Team holds the defaults applied to new teams.
	Team TeamConfig `yaml:"team" env:"TEAM"`

	// Session configures session persistence.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the prometheus collector.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry configures OTel tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// RuntimeConfig mirrors the dispatcher knobs.
type RuntimeConfig struct {
	// MaxHandoffs caps handoffs per task.
	MaxHandoffs int `yaml:"max_handoffs" env:"MAX_HANDOFFS"`
	// QueueSize bounds the dispatch queue.
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// PollInterval is the completion polling interval.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// TaskTimeout bounds a full task run.
	TaskTimeout time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	// ProgressRate rate-limits the external progress callback (per second).
	ProgressRate float64 `yaml:"progress_rate" env:"PROGRESS_RATE"`
	// ProgressBurst is the limiter burst.
	ProgressBurst int `yaml:"progress_burst" env:"PROGRESS_BURST"`
}

// TeamConfig holds team defaults.
type TeamConfig struct {
	// Mode: parallel or sequential.
	Mode string `yaml:"mode" env:"MODE"`
	// Strategy: first_success, majority_vote, weighted_vote, consensus,
	// debate or custom.
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// MemberTimeout bounds each member run.
	MemberTimeout time.Duration `yaml:"member_timeout" env:"MEMBER_TIMEOUT"`
	// MaxDebateRounds bounds debate synthesis.
	MaxDebateRounds int `yaml:"max_debate_rounds" env:"MAX_DEBATE_ROUNDS"`
	// MaxConcurrency bounds parallel fan-out (0 = unbounded).
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Store: memory, file or redis.
	Store string `yaml:"store" env:"STORE"`
	// BaseDir is the directory for the file store.
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis settings (store "redis" only).
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Cleanup controls expiry of terminal sessions.
	Cleanup CleanupConfig `yaml:"cleanup" env:"CLEANUP"`
}

// RedisConfig configures the redis session store.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// CleanupConfig controls removal of old terminal sessions.
type CleanupConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Interval  time.Duration `yaml:"interval" env:"INTERVAL"`
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap output sinks.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with file:line.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stacktraces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig configures the prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig configures OTel tracing and metrics export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Loader assembles a Config (builder pattern).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTMESH env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTMESH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers an extra validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration: defaults, then YAML, then environment,
// then the built-in Validate plus registered validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct, composing env keys from tags:
// AGENTMESH_RUNTIME_MAX_HANDOFFS overrides Runtime.MaxHandoffs.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration from path, panicking on failure. Meant for
// program init where a bad config should stop the process.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Runtime.MaxHandoffs <= 0 {
		errs = append(errs, "runtime.max_handoffs must be positive")
	}
	if c.Runtime.QueueSize <= 0 {
		errs = append(errs, "runtime.queue_size must be positive")
	}
	if c.Runtime.PollInterval <= 0 {
		errs = append(errs, "runtime.poll_interval must be positive")
	}
	if c.Runtime.ProgressRate < 0 {
		errs = append(errs, "runtime.progress_rate must not be negative")
	}

	switch c.Team.Mode {
	case "parallel", "sequential":
	default:
		errs = append(errs, fmt.Sprintf("team.mode %q is not parallel or sequential", c.Team.Mode))
	}
	switch c.Team.Strategy {
	case "first_success", "majority_vote", "weighted_vote", "consensus", "debate", "custom":
	default:
		errs = append(errs, fmt.Sprintf("team.strategy %q is unknown", c.Team.Strategy))
	}
	if c.Team.MaxDebateRounds <= 0 {
		errs = append(errs, "team.max_debate_rounds must be positive")
	}

	switch c.Session.Store {
	case "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("session.store %q is not memory, file or redis", c.Session.Store))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
