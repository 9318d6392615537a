// =============================================================================
// AgentMesh Default Configuration
// =============================================================================
// Reasonable defaults for every configuration section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Runtime:   DefaultRuntimeConfig(),
		Team:      DefaultTeamConfig(),
		Session:   DefaultSessionConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultRuntimeConfig returns the dispatcher defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxHandoffs:  10,
		QueueSize:    128,
		PollInterval: 50 * time.Millisecond,
		TaskTimeout:  5 * time.Minute,
	}
}

// DefaultTeamConfig returns the team defaults.
func DefaultTeamConfig() TeamConfig {
	return TeamConfig{
		Mode:            "parallel",
		Strategy:        "first_success",
		MemberTimeout:   30 * time.Second,
		MaxDebateRounds: 3,
		MaxConcurrency:  0,
	}
}

// DefaultSessionConfig returns the in-memory store defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Store:   "memory",
		BaseDir: "./data/sessions",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentmesh:",
		},
		Cleanup: CleanupConfig{
			Enabled:   true,
			Interval:  1 * time.Hour,
			Retention: 24 * time.Hour,
		},
	}
}

// DefaultLogConfig returns json-to-stdout logging at info level.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultMetricsConfig returns an enabled collector under the engine
// namespace.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentmesh",
	}
}

// DefaultTelemetryConfig returns disabled telemetry; enabling it requires
// an OTLP endpoint to be reachable.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentmesh",
		SampleRate:   1.0,
	}
}
