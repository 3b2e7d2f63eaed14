package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the whole startup surface, read once and passed into the core
// as an immutable value.
type Config struct {
	AMQP    AMQPConfig
	Mongo   MongoConfig
	Retry   RetryConfig
	Privacy bool
	Logging LoggingConfig
}

type AMQPConfig struct {
	Host      string
	Port      int
	VHost     string
	Username  string
	Password  string
	Heartbeat time.Duration
}

type MongoConfig struct {
	ConnectionString string
	Database         string
	LogCollection    string
	UserCollection   string
}

type RetryConfig struct {
	// Enabled gates all reconnect attempts for both supervisors.
	Enabled bool
	// MaxRetries of zero or less means retry forever.
	MaxRetries int
	Delay      time.Duration
}

type LoggingConfig struct {
	Level    string
	Console  bool
	FilePath string
}

// Load reads configuration from the environment, optionally seeded from an
// env file. Mongo settings have no defaults and must be present.
func Load(envFile string) (*Config, error) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	cfg := &Config{
		AMQP: AMQPConfig{
			Host:      getEnv("AMQP_BROKER_HOST", "127.0.0.1"),
			Port:      getEnvInt("AMQP_BROKER_PORT", 5672),
			VHost:     getEnv("AMQP_BROKER_VHOST", "/"),
			Username:  getEnv("AMQP_BROKER_USERNAME", "guest"),
			Password:  getEnv("AMQP_BROKER_PASSWORD", "guest"),
			Heartbeat: time.Duration(getEnvInt("AMQP_BROKER_HEARTBEAT", 0)) * time.Second,
		},
		Mongo: MongoConfig{
			ConnectionString: os.Getenv("MONGO_CONNECTION_STRING"),
			Database:         os.Getenv("MONGO_DATABASE"),
			LogCollection:    os.Getenv("MONGO_LOG_COLLECTION"),
			UserCollection:   os.Getenv("MONGO_USER_COLLECTION"),
		},
		Retry: RetryConfig{
			Enabled:    getEnvBool("RETRY_ON_CONNECTION_ERROR", true),
			MaxRetries: getEnvInt("MAX_RETRIES", 0),
			Delay:      time.Duration(getEnvInt("RETRY_DELAY", 5)) * time.Second,
		},
		Privacy: getEnvBool("SMSLOG_PRIVACY", false),
		Logging: LoggingConfig{
			Level:    getEnv("SMSLOG_LOG_LEVEL", "warning"),
			Console:  getEnvBool("SMSLOG_CONSOLE_LOGGING", true),
			FilePath: getEnv("SMSLOG_LOG_FILE", ""),
		},
	}

	for name, value := range map[string]string{
		"MONGO_CONNECTION_STRING": cfg.Mongo.ConnectionString,
		"MONGO_DATABASE":          cfg.Mongo.Database,
		"MONGO_LOG_COLLECTION":    cfg.Mongo.LogCollection,
		"MONGO_USER_COLLECTION":   cfg.Mongo.UserCollection,
	} {
		if value == "" {
			return nil, fmt.Errorf("config: %s is required", name)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
