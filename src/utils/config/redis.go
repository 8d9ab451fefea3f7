package config

import (
	"time"

	"github.com/spf13/viper"
)

type Redis struct {
	// Event publishing is disabled when false
	Enabled bool

	Port     uint16
	Host     string
	User     string
	Password string
	DB       int

	// Channel observer events get published to
	ChannelName string

	ClientKey  string
	ClientCert string
	CaCert     string

	EnableTLS bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	MaxOpenConns int
	MaxIdleConns int
}

func setRedisDefaults() {
	viper.SetDefault("Redis.Enabled", "false")
	viper.SetDefault("Redis.Port", "6379")
	viper.SetDefault("Redis.Host", "127.0.0.1")
	viper.SetDefault("Redis.User", "")
	viper.SetDefault("Redis.Password", "")
	viper.SetDefault("Redis.DB", "0")
	viper.SetDefault("Redis.ChannelName", "observer_events")
	viper.SetDefault("Redis.EnableTLS", "false")
	viper.SetDefault("Redis.ConnectTimeout", "10s")
	viper.SetDefault("Redis.RequestTimeout", "10s")
	viper.SetDefault("Redis.MaxOpenConns", "10")
	viper.SetDefault("Redis.MaxIdleConns", "2")
}
