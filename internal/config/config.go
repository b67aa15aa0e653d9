package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Seed        SeedConfig     `mapstructure:"seed"`
}

// ServerConfig contains the gRPC and admin HTTP listener settings
type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	APIToken        string        `mapstructure:"api_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings.
// DSN wins over the individual fields when set. Driver "memory" keeps all
// state in process and ignores the connection fields.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig contains the settings of the distributed card lock.
// When disabled an in-process lock is used.
type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
}

// KafkaConfig contains the transition event publisher settings
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig controls logger construction
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SeedConfig controls development data loaded at startup
type SeedConfig struct {
	DemoCards bool `mapstructure:"demo_cards"`
}

// Load reads configuration from an optional file and CARDGUARD_* environment variables.
// An empty path searches for config.yaml in . and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CARDGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Comma-separated brokers from the environment arrive as a single element
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.grpc_port", 8080)
	v.SetDefault("server.http_port", 9090)
	v.SetDefault("server.api_token", "dev-token")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "cardguard")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 5*time.Second)
	v.SetDefault("redis.lock_retry_interval", 25*time.Millisecond)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "cardguard.transitions")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")

	v.SetDefault("seed.demo_cards", false)
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if err := checkPort("server.grpc_port", c.Server.GRPCPort); err != nil {
		return err
	}
	if err := checkPort("server.http_port", c.Server.HTTPPort); err != nil {
		return err
	}
	if c.Server.GRPCPort == c.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ")
	}
	if c.Server.APIToken == "" {
		return fmt.Errorf("server.api_token must not be empty")
	}
	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverMemory {
		return fmt.Errorf("database.driver %q is not one of %s, %s", c.Database.Driver, DriverPostgres, DriverMemory)
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// ConnectionString returns the lib/pq connection string
func (d DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func checkPort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s %d is out of range", key, port)
	}
	return nil
}
