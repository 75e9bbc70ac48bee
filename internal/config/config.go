package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Classifier ClassifierConfig `yaml:"classifier"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig holds broker connection settings. Host and port may be
// overridden via RABBITMQ_HOST / RABBITMQ_PORT.
type RabbitMQConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	FallbackLog string `yaml:"fallback_log"`
}

// URL builds the AMQP dial string.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}

type ClassifierConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.RabbitMQ.User == "" {
		cfg.RabbitMQ.User = "guest"
	}
	if cfg.RabbitMQ.Password == "" {
		cfg.RabbitMQ.Password = "guest"
	}
	if cfg.RabbitMQ.FallbackLog == "" {
		cfg.RabbitMQ.FallbackLog = "failed_events.log"
	}
}

func applyEnv(cfg *Config) {
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if host := os.Getenv("RABBITMQ_HOST"); host != "" {
		cfg.RabbitMQ.Host = host
	}
	if port := os.Getenv("RABBITMQ_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.RabbitMQ.Port = p
		}
	}
	if key := os.Getenv("CLASSIFIER_API_KEY"); key != "" {
		cfg.Classifier.APIKey = key
	}
}
