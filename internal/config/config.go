package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bashkirian/payment-health/pkg/models"
)

// Источники событий для дашборда
const (
	SourceMemory  = "memory"
	SourceRedis   = "redis"
	SourceBackend = "backend"
)

// Config структура для конфигурации приложения
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Source    SourceConfig    `mapstructure:"source"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// ServerConfig конфигурация сервера
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SourceConfig откуда дашборд берет события. Пустой kind выбирается
// по наличию redis.addr, как раньше.
type SourceConfig struct {
	Kind string `mapstructure:"kind"`
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// BackendConfig REST API платежного бэкенда
type BackendConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	PageSize int           `mapstructure:"page_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// KafkaConfig потребитель событий; выключен, если брокеры не заданы
type KafkaConfig struct {
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

type DashboardConfig struct {
	DefaultRange    string        `mapstructure:"default_range"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timezone        string        `mapstructure:"timezone"`
}

type IngestConfig struct {
	BufferSize int           `mapstructure:"buffer_size"`
	Retention  time.Duration `mapstructure:"retention"`
}

// LoadConfig загружает конфигурацию из файла и переменных окружения
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/payment-health")

	setDefaults(v)

	// Читаем переменные окружения
	v.SetEnvPrefix("APP")
	// Для вложенных структур
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Пытаемся прочитать конфигурационный файл
	if err := v.ReadInConfig(); err != nil {
		// Если файл не найден, используем значения по умолчанию и переменные окружения
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("could not read config file", "err", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Устанавливаем значения по умолчанию
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("source.kind", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "payment-health:events")

	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.page_size", 500)
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "payment-events")
	v.SetDefault("kafka.group_id", "payment-health")
	v.SetDefault("kafka.poll_timeout", 5*time.Second)

	v.SetDefault("dashboard.default_range", string(models.RangeLast24Hours))
	v.SetDefault("dashboard.refresh_interval", 30*time.Second)
	v.SetDefault("dashboard.timezone", "UTC")

	v.SetDefault("ingest.buffer_size", 1000)
	v.SetDefault("ingest.retention", 8*24*time.Hour)
}

// SourceKind возвращает явный kind или выводит его из настроек Redis.
func (c *Config) SourceKind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if kind != "" {
		return kind
	}
	if c.Redis.Addr != "" {
		return SourceRedis
	}
	return SourceMemory
}

// DefaultRange разбирает dashboard.default_range.
func (c *Config) DefaultRange() (models.Range, error) {
	return models.ParseRange(c.Dashboard.DefaultRange)
}

func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Dashboard.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dashboard.timezone: %w", err)
	}
	return loc, nil
}

// KafkaEnabled true, если задан хотя бы один брокер.
func (c *Config) KafkaEnabled() bool {
	for _, b := range c.Kafka.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	switch c.SourceKind() {
	case SourceMemory:
	case SourceRedis:
		if c.Redis.Addr == "" {
			return errors.New("source.kind=redis requires redis.addr")
		}
	case SourceBackend:
		if c.Backend.BaseURL == "" {
			return errors.New("source.kind=backend requires backend.base_url")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	if _, err := c.DefaultRange(); err != nil {
		return fmt.Errorf("dashboard.default_range: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Ingest.BufferSize <= 0 {
		return errors.New("ingest.buffer_size must be positive")
	}
	return nil
}
