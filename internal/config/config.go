package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Shopify   ShopifyConfig   `mapstructure:"shopify"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// ShopifyConfig is the retry policy for platform calls.
type ShopifyConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type WorkersConfig struct {
	PoolSize       int           `mapstructure:"pool_size"`
	DrainBatchSize int           `mapstructure:"drain_batch_size"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("SHIPSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("mysql.dsn", "root:root@tcp(127.0.0.1:3306)/shipsync?charset=utf8mb4&parseTime=True&loc=Local")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("etcd.endpoints", []string{"127.0.0.1:2379"})
	viper.SetDefault("etcd.dial_timeout", 5*time.Second)
	viper.SetDefault("shopify.max_retries", 3)
	viper.SetDefault("shopify.initial_delay", time.Second)
	viper.SetDefault("shopify.attempt_timeout", 30*time.Second)
	viper.SetDefault("workers.pool_size", 5)
	viper.SetDefault("workers.drain_batch_size", 50)
	viper.SetDefault("workers.sweep_interval", 5*time.Minute)
	viper.SetDefault("workers.sweep_batch_size", 100)
	viper.SetDefault("ratelimit.requests_per_second", 5)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
