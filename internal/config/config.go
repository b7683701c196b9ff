package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level process configuration, loaded from YAML with
// environment overrides for anything secret.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Messaging MessagingConfig `yaml:"messaging"`
	Timeout   TimeoutConfig   `yaml:"timeout"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type RateLimitConfig struct {
	RPS    int           `yaml:"rps"`
	Burst  int           `yaml:"burst"`
	Window time.Duration `yaml:"window"`
}

// MessagingConfig controls the naming convention applied on both sides of the
// broker fence: the command queue derivation, the default reply destination,
// and the event topic derivation.
type MessagingConfig struct {
	CommandPrefix string `yaml:"commandPrefix"`
	QueueSuffix   string `yaml:"queueSuffix"`
	ReplyQueue    string `yaml:"replyQueue"`
	EventPrefix   string `yaml:"eventPrefix"`
}

// CommandQueueName builds APP.CMD.<name>.Q from the configured convention.
func (m MessagingConfig) CommandQueueName(name string) string {
	return m.CommandPrefix + name + m.QueueSuffix
}

// EventTopicName builds events.<name> from the configured convention.
func (m MessagingConfig) EventTopicName(name string) string {
	return m.EventPrefix + name
}

type TimeoutConfig struct {
	CommandLease   time.Duration `yaml:"commandLease"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	SyncWait       time.Duration `yaml:"syncWait"`
	SweepInterval  time.Duration `yaml:"sweepInterval"`
	SweepBatchSize int           `yaml:"sweepBatchSize"`
}

// IsAsync reports whether the ingest endpoint should skip the synchronous wait entirely.
func (t TimeoutConfig) IsAsync() bool {
	return t.SyncWait <= 0
}

func defaults() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Postgres: PostgresConfig{},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Kafka:    KafkaConfig{Brokers: []string{"localhost:9092"}},
		RateLimit: RateLimitConfig{
			RPS:    50,
			Burst:  100,
			Window: time.Second,
		},
		Messaging: MessagingConfig{
			CommandPrefix: "APP.CMD.",
			QueueSuffix:   ".Q",
			ReplyQueue:    "APP.CMD.REPLY.Q",
			EventPrefix:   "events.",
		},
		Timeout: TimeoutConfig{
			CommandLease:   5 * time.Minute,
			MaxBackoff:     5 * time.Minute,
			SyncWait:       2 * time.Second,
			SweepInterval:  30 * time.Second,
			SweepBatchSize: 500,
		},
	}
}

// Load reads a YAML config file, applying defaults for anything unset and
// overriding the Postgres/Redis credentials from the environment if present.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}

	return &cfg, nil
}
