package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredMongo(t *testing.T) {
	t.Helper()
	t.Setenv("MONGO_CONNECTION_STRING", "mongodb://localhost:27017")
	t.Setenv("MONGO_DATABASE", "smslog")
	t.Setenv("MONGO_LOG_COLLECTION", "sms_log")
	t.Setenv("MONGO_USER_COLLECTION", "sms_users")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredMongo(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.AMQP.Host)
	assert.Equal(t, 5672, cfg.AMQP.Port)
	assert.Equal(t, "/", cfg.AMQP.VHost)
	assert.Equal(t, "guest", cfg.AMQP.Username)
	assert.Equal(t, time.Duration(0), cfg.AMQP.Heartbeat)

	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 0, cfg.Retry.MaxRetries, "zero means retry forever")
	assert.Equal(t, 5*time.Second, cfg.Retry.Delay)

	assert.False(t, cfg.Privacy)
	assert.Equal(t, "warning", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setRequiredMongo(t)
	t.Setenv("AMQP_BROKER_HOST", "mq.example.net")
	t.Setenv("AMQP_BROKER_PORT", "5673")
	t.Setenv("AMQP_BROKER_HEARTBEAT", "30")
	t.Setenv("RETRY_ON_CONNECTION_ERROR", "false")
	t.Setenv("MAX_RETRIES", "4")
	t.Setenv("RETRY_DELAY", "2")
	t.Setenv("SMSLOG_PRIVACY", "true")
	t.Setenv("SMSLOG_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mq.example.net", cfg.AMQP.Host)
	assert.Equal(t, 5673, cfg.AMQP.Port)
	assert.Equal(t, 30*time.Second, cfg.AMQP.Heartbeat)
	assert.False(t, cfg.Retry.Enabled)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.Delay)
	assert.True(t, cfg.Privacy)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_RequiresMongoSettings(t *testing.T) {
	setRequiredMongo(t)
	t.Setenv("MONGO_DATABASE", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGO_DATABASE")
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	setRequiredMongo(t)
	t.Setenv("AMQP_BROKER_PORT", "not-a-port")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5672, cfg.AMQP.Port)
}
