// internal/config/config.go
package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Simulation struct {
		IntervalSeconds  int `mapstructure:"interval_seconds"`
		FreshnessSeconds int `mapstructure:"freshness_seconds"`
	} `mapstructure:"simulation"`
	Auth struct {
		JWTSecret     string `mapstructure:"jwt_secret"`
		JWTExpiration int    `mapstructure:"jwt_expiration"` // in minutes
	} `mapstructure:"auth"`
	Alerting struct {
		Rules []RuleConfig `mapstructure:"rules"`
	} `mapstructure:"alerting"`
}

// RuleConfig is one alert threshold (metric compared against threshold with operator).
type RuleConfig struct {
	Metric    string  `mapstructure:"metric"`
	Threshold float64 `mapstructure:"threshold"`
	Operator  string  `mapstructure:"operator"`
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password,
		c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.SSLMode)
}

// Load reads config.yaml from the given directory, overlaid with environment
// variables. A missing file falls back to defaults so the demo runs out of the box.
func Load(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: error reading config file, using defaults: %v", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if len(cfg.Alerting.Rules) == 0 {
		cfg.Alerting.Rules = DefaultRules()
	}

	return &cfg, nil
}

// DefaultRules are the stock BMS thresholds.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{Metric: "temperature", Threshold: 45, Operator: ">"},
		{Metric: "co2_ppm", Threshold: 1000, Operator: ">"},
	}
}

func setDefaults() {
	viper.SetDefault("server.port", 7000)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "bms")
	viper.SetDefault("database.password", "bms")
	viper.SetDefault("database.name", "bms")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("simulation.interval_seconds", 10)
	viper.SetDefault("simulation.freshness_seconds", 60)
	viper.SetDefault("auth.jwt_secret", "change-me")
	viper.SetDefault("auth.jwt_expiration", 480)
}
