package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CRYPTO_ENCRYPTION_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.UseSQS)
	assert.Equal(t, "8086", cfg.Server.Port)
	assert.Equal(t, 1, cfg.Jobs.MaxConcurrentTenants)
	assert.Equal(t, 5, cfg.Jobs.PDFBatchSize)
	assert.Equal(t, 10, cfg.Notifications.MaxBatchSize)
	assert.Equal(t, 3, cfg.Notifications.MaxRetries)
	assert.True(t, cfg.Notifications.RetryPermanentErrors)
	assert.Equal(t, 20, cfg.SQS.WaitTimeSeconds)
	assert.Equal(t, time.Second, cfg.SQS.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.LeaseTTL)
	assert.Equal(t, "*/15 * * * *", cfg.Jobs.Schedules.Reminder)
	assert.Equal(t, "esign:lock:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 10, cfg.RabbitMQ.Prefetch)
	assert.Equal(t, "./storage", cfg.Storage.LocalRoot)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CRYPTO_ENCRYPTION_KEY", "test-key")
	t.Setenv("ESIGN_USE_SQS", "true")
	t.Setenv("JOBS_MAX_CONCURRENT_TENANTS", "4")
	t.Setenv("NOTIFICATIONS_RETRY_PERMANENT_ERRORS", "false")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.UseSQS)
	assert.Equal(t, 4, cfg.Jobs.MaxConcurrentTenants)
	assert.False(t, cfg.Notifications.RetryPermanentErrors)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoDB.URI)
}

func TestLoadConfig_MissingEncryptionKey(t *testing.T) {
	t.Setenv("CRYPTO_ENCRYPTION_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crypto.encryption_key")
}

func TestConfig_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		expect int
	}{
		{name: "cron mode without ingress", cfg: Config{}, expect: 1},
		{name: "cron mode with rabbitmq", cfg: Config{RabbitMQ: RabbitMQConfig{Enabled: true}}, expect: 0},
		{name: "sqs mode", cfg: Config{UseSQS: true}, expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.cfg.Warnings(), tt.expect)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MongoDB:       MongoDBConfig{URI: "mongodb://localhost:27017", Database: "esign_master"},
			Crypto:        CryptoConfig{EncryptionKey: "k"},
			Notifications: NotificationsConfig{MaxRetries: 3},
			SQS:           SQSConfig{WaitTimeSeconds: 20, NotificationQueue: "n", PDFQueue: "p"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "zero retries", mutate: func(c *Config) { c.Notifications.MaxRetries = 0 }, wantErr: true},
		{name: "wait time too long", mutate: func(c *Config) { c.SQS.WaitTimeSeconds = 21 }, wantErr: true},
		{name: "sqs mode without queue", mutate: func(c *Config) { c.UseSQS = true; c.SQS.PDFQueue = "" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Redis.Enabled = true }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.MongoDB.Database = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{SQS: SQSConfig{MaxMessages: 50}}
	applyDefaults(cfg)

	assert.Equal(t, 1, cfg.Jobs.MaxConcurrentTenants)
	assert.Equal(t, 10, cfg.SQS.MaxMessages)
	assert.Equal(t, 10, cfg.Notifications.MaxBatchSize)
}
