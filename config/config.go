package config

import "time"

// Config is the complete engine configuration.
type Config struct {
	// Engine controls execution behavior.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Checkpoint controls snapshot policy and storage.
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Redis backs the Redis checkpoint store.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database backs the relational checkpoint store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Session controls session and thread limits.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig controls how graphs execute.
type EngineConfig struct {
	// NodeTimeout bounds one node executor invocation.
	NodeTimeout time.Duration `yaml:"node_timeout" env:"NODE_TIMEOUT"`
	// WaitTimeout bounds human-relay wait nodes; zero means unbounded.
	WaitTimeout time.Duration `yaml:"wait_timeout" env:"WAIT_TIMEOUT"`
	// MaxRetries is the default retry budget for tool nodes.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// ParallelBatchSize caps concurrent evaluations and node runs
	// within one level batch.
	ParallelBatchSize int `yaml:"parallel_batch_size" env:"PARALLEL_BATCH_SIZE"`
	// StreamBufferSize sizes the event channel for streaming runs.
	StreamBufferSize int `yaml:"stream_buffer_size" env:"STREAM_BUFFER_SIZE"`
}

// CheckpointConfig controls snapshotting.
type CheckpointConfig struct {
	// Backend selects the store: memory, redis or database.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Namespace isolates checkpoint keys between deployments.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// EveryNSteps triggers periodic checkpoints; zero disables them.
	EveryNSteps int `yaml:"every_n_steps" env:"EVERY_N_STEPS"`
	// OnError snapshots state on node failure.
	OnError bool `yaml:"on_error" env:"ON_ERROR"`
	// Milestones lists node IDs that trigger a checkpoint on completion.
	Milestones []string `yaml:"milestones" env:"MILESTONES"`
	// KeepLast bounds retained checkpoints per thread; zero keeps all.
	KeepLast int `yaml:"keep_last" env:"KEEP_LAST"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver is the GORM dialect name, e.g. sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// SessionConfig controls sessions.
type SessionConfig struct {
	// MaxThreads bounds threads per session; zero means unlimited.
	MaxThreads int `yaml:"max_threads" env:"MAX_THREADS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig configures observability.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// MetricsNamespace prefixes Prometheus metric names.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// DefaultConfig returns sensible defaults for every section.
func DefaultConfig() *Config {
	return &Config{
		Engine:     DefaultEngineConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Session:    DefaultSessionConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		NodeTimeout:       5 * time.Minute,
		WaitTimeout:       0,
		MaxRetries:        3,
		ParallelBatchSize: 4,
		StreamBufferSize:  64,
	}
}

// DefaultCheckpointConfig returns the default checkpoint settings.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend:   "memory",
		Namespace: "default",
		OnError:   true,
		KeepLast:  20,
	}
}

// DefaultRedisConfig returns the default Redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "weft:",
	}
}

// DefaultDatabaseConfig returns the default database settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: "sqlite",
		DSN:    "weft.db",
	}
}

// DefaultSessionConfig returns the default session settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MaxThreads: 16}
}

// DefaultLogConfig returns the default log settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "json"}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:          false,
		ServiceName:      "weft",
		MetricsNamespace: "weft",
	}
}
