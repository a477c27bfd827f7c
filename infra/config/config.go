// Package config loads engine settings from the environment, with an
// optional .env file for local development.
package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir string

	Brokers       []string
	EventsTopic   string
	MatchesTopic  string
	CommandsTopic string
	ConsumerGroup string

	SessionTimeout    time.Duration
	SweepInterval     time.Duration
	BroadcastInterval time.Duration

	Debug bool
}

func Load() *Config {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // no .env is fine, env vars still apply

	viper.SetDefault("DATA_DIR", "./data")
	viper.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	viper.SetDefault("EVENTS_TOPIC", "bazaar.session-events")
	viper.SetDefault("MATCHES_TOPIC", "bazaar.matches")
	viper.SetDefault("COMMANDS_TOPIC", "bazaar.commands")
	viper.SetDefault("CONSUMER_GROUP", "bazaar-engine")
	viper.SetDefault("SESSION_TIMEOUT", time.Hour)
	viper.SetDefault("SWEEP_INTERVAL", time.Minute)
	viper.SetDefault("BROADCAST_INTERVAL", 250*time.Millisecond)
	viper.SetDefault("DEBUG", false)

	return &Config{
		DataDir:           viper.GetString("DATA_DIR"),
		Brokers:           viper.GetStringSlice("KAFKA_BROKERS"),
		EventsTopic:       viper.GetString("EVENTS_TOPIC"),
		MatchesTopic:      viper.GetString("MATCHES_TOPIC"),
		CommandsTopic:     viper.GetString("COMMANDS_TOPIC"),
		ConsumerGroup:     viper.GetString("CONSUMER_GROUP"),
		SessionTimeout:    viper.GetDuration("SESSION_TIMEOUT"),
		SweepInterval:     viper.GetDuration("SWEEP_INTERVAL"),
		BroadcastInterval: viper.GetDuration("BROADCAST_INTERVAL"),
		Debug:             viper.GetBool("DEBUG"),
	}
}
