package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.GRPCPort)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=cardguard sslmode=disable", cfg.Database.ConnectionString())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Redis.LockTTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  grpc_port: 7001
  http_port: 7002
  api_token: s3cret
database:
  driver: memory
redis:
  enabled: true
  addr: redis:6379
  lock_ttl: 2s
kafka:
  enabled: true
  brokers: [kafka-1:9092, kafka-2:9092]
  topic: card.events
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 7001, cfg.Server.GRPCPort)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 25*time.Millisecond, cfg.Redis.LockRetryInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "card.events", cfg.Kafka.Topic)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CARDGUARD_SERVER_GRPC_PORT", "6000")
	t.Setenv("CARDGUARD_DATABASE_DSN", "postgres://u:p@db:5432/cards?sslmode=require")
	t.Setenv("CARDGUARD_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Server.GRPCPort)
	assert.Equal(t, "postgres://u:p@db:5432/cards?sslmode=require", cfg.Database.ConnectionString())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{GRPCPort: 8080, HTTPPort: 9090, APIToken: "t"},
			Database: DatabaseConfig{Driver: DriverPostgres},
			Redis:    RedisConfig{LockTTL: time.Second},
			Kafka:    KafkaConfig{Brokers: []string{"k:9092"}, Topic: "t"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"Valid", func(c *Config) {}, ""},
		{"gRPC port zero", func(c *Config) { c.Server.GRPCPort = 0 }, "server.grpc_port 0 is out of range"},
		{"HTTP port too large", func(c *Config) { c.Server.HTTPPort = 70000 }, "server.http_port 70000 is out of range"},
		{"Same ports", func(c *Config) { c.Server.HTTPPort = 8080 }, "must differ"},
		{"Empty token", func(c *Config) { c.Server.APIToken = "" }, "api_token"},
		{"Unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, `database.driver "mysql"`},
		{"Redis without ttl", func(c *Config) { c.Redis = RedisConfig{Enabled: true} }, "redis.lock_ttl"},
		{"Kafka without topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, "kafka.brokers and kafka.topic"},
		{"Kafka disabled without topic", func(c *Config) { c.Kafka.Topic = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
