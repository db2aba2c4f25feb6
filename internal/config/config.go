/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the treasury-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	TreasuryEventsExchange   string `mapstructure:"TREASURY_EVENTS_EXCHANGE"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ActionTokenSecret        string `mapstructure:"ACTION_TOKEN_SECRET"`
	ActionTokenMaxAgeHours   int    `mapstructure:"ACTION_TOKEN_MAX_AGE_HOURS"`
	ActionLinkBaseURL        string `mapstructure:"ACTION_LINK_BASE_URL"`
	ActionRateLimitPerMinute int    `mapstructure:"ACTION_RATE_LIMIT_PER_MINUTE"`
	AutoSendSchedule         string `mapstructure:"AUTO_SEND_SCHEDULE"`
	AutoSendBatchSize        int    `mapstructure:"AUTO_SEND_BATCH_SIZE"`
	InternalAPIKey           string `mapstructure:"INTERNAL_API_KEY"`
	JWKSURL                  string `mapstructure:"JWKS_URL"`
	DefaultCurrency          string `mapstructure:"DEFAULT_CURRENCY"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TREASURY_EVENTS_EXCHANGE", "treasury.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "treasury:rate_limit")
	viper.SetDefault("ACTION_TOKEN_MAX_AGE_HOURS", 168)
	viper.SetDefault("ACTION_LINK_BASE_URL", "http://localhost:8080")
	viper.SetDefault("ACTION_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("AUTO_SEND_SCHEDULE", "0 * * * *")
	viper.SetDefault("AUTO_SEND_BATCH_SIZE", 25)
	viper.SetDefault("DEFAULT_CURRENCY", "USD")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TREASURY_EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("ACTION_TOKEN_SECRET")
	_ = viper.BindEnv("ACTION_TOKEN_MAX_AGE_HOURS")
	_ = viper.BindEnv("ACTION_LINK_BASE_URL")
	_ = viper.BindEnv("ACTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("AUTO_SEND_SCHEDULE")
	_ = viper.BindEnv("AUTO_SEND_BATCH_SIZE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "TREASURY_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("DEFAULT_CURRENCY")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("TREASURY_SERVICE_INTERNAL_API_KEY"))
	}

	config.ActionLinkBaseURL = strings.TrimRight(strings.TrimSpace(config.ActionLinkBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "treasury:rate_limit"
	}

	if config.ActionTokenMaxAgeHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive token max age configured; using default\" hours=%d", config.ActionTokenMaxAgeHours)
		config.ActionTokenMaxAgeHours = 168
	}
	if config.AutoSendBatchSize <= 0 {
		config.AutoSendBatchSize = 25
	}
	if config.ActionRateLimitPerMinute < 0 {
		config.ActionRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.AutoSendSchedule) == "" {
		config.AutoSendSchedule = "0 * * * *"
	}
	if strings.TrimSpace(config.DefaultCurrency) == "" {
		config.DefaultCurrency = "USD"
	}

	return
}
