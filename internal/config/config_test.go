package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, domain.DefaultImpactFactors(), cfg.ImpactFactors())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: postgres
server:
  addr: ":9090"
redis:
  enabled: true
  ttl: 1m
impact:
  factors:
    plastic:
      co2_avoided_per_kg: 2
      landfill_diversion: 1
      points_per_kg: 12
`), 0o600))

	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://app.ecocycle.example,http://localhost:5173")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, ":7070", cfg.Server.Addr, "environment wins over the file")
	assert.Equal(t, []string{"https://app.ecocycle.example", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoDBConfig().URI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaConfig().Brokers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.RedisConfig().TTL)

	factors := cfg.ImpactFactors()
	assert.Equal(t, 12.0, factors[domain.WasteTypePlastic].PointsPerKg)
	assert.Equal(t, domain.DefaultImpactFactors()[domain.WasteTypePaper], factors[domain.WasteTypePaper])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "cassandra" }, "store.driver"},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "at least one broker"},
		{"no consumer group", func(c *Config) { c.Kafka.ConsumerGroup = "" }, "consumer group"},
		{"origin without scheme", func(c *Config) { c.Server.AllowedOrigins = []string{"app.ecocycle.example"} }, "server.allowed_origins"},
		{"unknown waste type", func(c *Config) {
			c.Impact.Factors = map[string]domain.ImpactFactors{"lava": {}}
		}, "impact.factors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Store: StoreConfig{Driver: DriverMemory},
				Kafka: KafkaConfig{Enabled: true, Brokers: []string{"k:9092"}, ConsumerGroup: "collection-worker"},
			}
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
