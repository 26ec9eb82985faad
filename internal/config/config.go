// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервисов.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"migrations"`
	MetricsAddress          string `yaml:"metrics_address" env-default:":9100"`
	Registration            `yaml:"registration"`
	SMTPConnection          `yaml:"smtp_connection"`
	RabbitMQConnection      `yaml:"rabbitmq_connection"`
	RedisConnection         `yaml:"redis_connection"`
}

// Registration настройки воркфлоу регистрации и очистки.
type Registration struct {
	ActivationDays   int           `yaml:"activation_days" env-default:"7"`
	DefaultFromEmail string        `yaml:"default_from_email"`
	HashAlgorithm    string        `yaml:"hash_algorithm" env-default:"pbkdf2_sha256"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" env-default:"24h"`
	SweepTimeout     time.Duration `yaml:"sweep_timeout" env-default:"10m"`
}

// SMTPConnection настройки подключения к SMTP-серверу.
type SMTPConnection struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort string `yaml:"smtp_port" env-default:"587"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_pass" env:"SMTP_PASS"`
}

// RabbitMQConnection настройки подключения к RabbitMQ.
type RabbitMQConnection struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// RedisConnection настройки подключения к Redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"5s"`
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH.
// Завершает процесс, если файл отсутствует или не читается.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
