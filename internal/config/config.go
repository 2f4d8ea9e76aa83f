package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Logger    LoggerConfig    `yaml:"logger"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// MQTTConfig describes the link to the machine controller. An empty broker
// means the in-process kitchen simulator is used instead.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type SchedulerConfig struct {
	MaxQueueSize             int   `yaml:"max_queue_size"`
	MaxWaitSeconds           int   `yaml:"max_wait_seconds"`
	ProcessingTimeoutSeconds int   `yaml:"processing_timeout_seconds"`
	ProcessingSweepSeconds   int   `yaml:"processing_sweep_seconds"`
	QueueSweepSeconds        int   `yaml:"queue_sweep_seconds"`
	StatsIntervalSeconds     int   `yaml:"stats_interval_seconds"`
	CleanupIntervalSeconds   int   `yaml:"cleanup_interval_seconds"`
	RetentionHours           int   `yaml:"retention_hours"`
	Batching                 *bool `yaml:"batching"`
	BatchWindow              int   `yaml:"batch_window"`
}

type SnapshotConfig struct {
	Path           string `yaml:"path"`
	RestoreOnStart *bool  `yaml:"restore_on_start"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type SimulatorConfig struct {
	Speedup int `yaml:"speedup"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "burger-queue"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "machine"
	}

	s := &c.Scheduler
	if s.MaxQueueSize == 0 {
		s.MaxQueueSize = 50
	}
	if s.MaxWaitSeconds == 0 {
		s.MaxWaitSeconds = 300
	}
	if s.ProcessingTimeoutSeconds == 0 {
		s.ProcessingTimeoutSeconds = 600
	}
	if s.ProcessingSweepSeconds == 0 {
		s.ProcessingSweepSeconds = 60
	}
	if s.QueueSweepSeconds == 0 {
		s.QueueSweepSeconds = 30
	}
	if s.StatsIntervalSeconds == 0 {
		s.StatsIntervalSeconds = 300
	}
	if s.CleanupIntervalSeconds == 0 {
		s.CleanupIntervalSeconds = 3600
	}
	if s.RetentionHours == 0 {
		s.RetentionHours = 24
	}
	if s.Batching == nil {
		enabled := true
		s.Batching = &enabled
	}
	if s.BatchWindow == 0 {
		s.BatchWindow = 5
	}

	if c.Snapshot.RestoreOnStart == nil {
		restore := true
		c.Snapshot.RestoreOnStart = &restore
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Simulator.Speedup == 0 {
		c.Simulator.Speedup = 60
	}
}

func (c *Config) Validate() error {
	if c.Scheduler.MaxQueueSize < 1 {
		return fmt.Errorf("scheduler.max_queue_size must be positive")
	}
	for name, v := range map[string]int{
		"max_wait_seconds":           c.Scheduler.MaxWaitSeconds,
		"processing_timeout_seconds": c.Scheduler.ProcessingTimeoutSeconds,
		"processing_sweep_seconds":   c.Scheduler.ProcessingSweepSeconds,
		"queue_sweep_seconds":        c.Scheduler.QueueSweepSeconds,
		"stats_interval_seconds":     c.Scheduler.StatsIntervalSeconds,
		"cleanup_interval_seconds":   c.Scheduler.CleanupIntervalSeconds,
		"retention_hours":            c.Scheduler.RetentionHours,
	} {
		if v < 1 {
			return fmt.Errorf("scheduler.%s must be positive", name)
		}
	}
	if c.Scheduler.BatchWindow < 1 {
		return fmt.Errorf("scheduler.batch_window must be positive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level %q is not supported", c.Logger.Level)
	}
	return nil
}

func (s SchedulerConfig) MaxWait() time.Duration {
	return time.Duration(s.MaxWaitSeconds) * time.Second
}

func (s SchedulerConfig) ProcessingTimeout() time.Duration {
	return time.Duration(s.ProcessingTimeoutSeconds) * time.Second
}

func (s SchedulerConfig) ProcessingSweep() time.Duration {
	return time.Duration(s.ProcessingSweepSeconds) * time.Second
}

func (s SchedulerConfig) QueueSweep() time.Duration {
	return time.Duration(s.QueueSweepSeconds) * time.Second
}

func (s SchedulerConfig) StatsInterval() time.Duration {
	return time.Duration(s.StatsIntervalSeconds) * time.Second
}

func (s SchedulerConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

func (s SchedulerConfig) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

func (s SchedulerConfig) BatchingEnabled() bool {
	return s.Batching == nil || *s.Batching
}
