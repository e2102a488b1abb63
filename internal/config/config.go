package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AssistantURL          string `mapstructure:"ASSISTANT_URL"`
	ConnectTimeoutSeconds int    `mapstructure:"CONNECT_TIMEOUT_SECONDS"`
	StreamIdleTimeoutSecs int    `mapstructure:"STREAM_IDLE_TIMEOUT_SECONDS"`
	DatabasePath          string `mapstructure:"DATABASE_PATH"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	UserID                string `mapstructure:"USER_ID"`
	UserTier              string `mapstructure:"USER_TIER"`
	FreeDailyMessageLimit int    `mapstructure:"FREE_DAILY_MESSAGE_LIMIT"`
	LocalServerPort       int    `mapstructure:"LOCAL_SERVER_PORT"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("ASSISTANT_URL", "http://localhost:3000")
	viper.SetDefault("CONNECT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("STREAM_IDLE_TIMEOUT_SECONDS", 60)
	viper.SetDefault("DATABASE_PATH", "./data/pickwise.db")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("USER_ID", "")
	viper.SetDefault("USER_TIER", "free")
	viper.SetDefault("FREE_DAILY_MESSAGE_LIMIT", 20)
	viper.SetDefault("LOCAL_SERVER_PORT", 3000)

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
