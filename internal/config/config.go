// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	defaultAuthPassword = "password"
)

type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	User                   string `yaml:"user"`
	Password               string `yaml:"-"`
	DBName                 string `yaml:"dbname"`
	SSLMode                string `yaml:"sslmode"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	PingTimeoutSeconds     int    `yaml:"ping_timeout_seconds"`
}

type AuthConfig struct {
	Username             string `yaml:"username"`
	Password             string `yaml:"-"`
	PasswordHash         string `yaml:"password_hash"`
	SessionLifetimeHours int    `yaml:"session_lifetime_hours"`
}

type CorpFilterConfig struct {
	Path           string `yaml:"path"`
	DefaultEnabled bool   `yaml:"default_enabled"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	SiteName       string           `yaml:"site_name"`
	AppEnv         string           `yaml:"app_env"`
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	Debug          bool             `yaml:"debug"`
	MetricsAddr    string           `yaml:"metrics_addr"`
	TrustProxy     bool             `yaml:"trust_proxy_headers"`
	TemplatesPath  string           `yaml:"templates_path"`
	StaticPath     string           `yaml:"static_path"`
	Database       DatabaseConfig   `yaml:"database"`
	Auth           AuthConfig       `yaml:"auth"`
	CorpFilter     CorpFilterConfig `yaml:"corp_filter"`
	LoginRateLimit RateLimitConfig  `yaml:"login_rate_limit"`
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Default - настройки для локального запуска против PostgreSQL.
func Default() Config {
	return Config{
		SiteName:      "Статистика организаций",
		AppEnv:        "development",
		Host:          "0.0.0.0",
		Port:          5000,
		TemplatesPath: "templates",
		StaticPath:    "static",
		Database: DatabaseConfig{
			Driver:                 DriverPostgres,
			Host:                   "localhost",
			Port:                   5432,
			User:                   "postgres",
			Password:               "admin",
			DBName:                 "stat",
			SSLMode:                "disable",
			MaxOpenConns:           10,
			MaxIdleConns:           10,
			ConnMaxLifetimeMinutes: 3,
			PingTimeoutSeconds:     5,
		},
		Auth: AuthConfig{
			Username:             "admin",
			Password:             defaultAuthPassword,
			SessionLifetimeHours: 12,
		},
		CorpFilter: CorpFilterConfig{
			Path:           "corp.txt",
			DefaultEnabled: true,
		},
		LoginRateLimit: RateLimitConfig{RPS: 0.2, Burst: 5},
	}
}

func getStringEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
		slog.Warn("Не удалось преобразовать переменную окружения в число, используется значение по умолчанию", "key", key, "value", valueStr)
	}
	return defaultValue
}

func getFloatEnvOrDefault(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
		slog.Warn("Не удалось преобразовать переменную окружения в число, используется значение по умолчанию", "key", key, "value", valueStr)
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
		slog.Warn("Не удалось преобразовать переменную окружения в bool, используется значение по умолчанию", "key", key, "value", valueStr)
	}
	return defaultValue
}

// LoadConfig: значения по умолчанию, затем YAML-файл (если есть), затем переменные окружения.
// Отсутствие файла не ошибка: конфигурация может целиком задаваться через окружение.
func LoadConfig(filename string) (*Config, error) {
	appEnvFromSystem := os.Getenv("APP_ENV")
	if appEnvFromSystem != "production" {
		if err := godotenv.Load("configs/.env"); err != nil {
			slog.Debug("configs/.env не найден или ошибка загрузки, используются системные переменные окружения", "error", err)
		} else {
			slog.Info("Переменные окружения загружены из configs/.env")
		}
	}

	cfg := Default()
	if filename != "" {
		file, err := os.Open(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("Файл конфигурации не найден, используются значения по умолчанию и окружение", "path", filename)
		case err != nil:
			return nil, fmt.Errorf("ошибка открытия файла конфигурации '%s': %w", filename, err)
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("ошибка декодирования YAML из файла '%s': %w", filename, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Конфигурация загружена", "app_env", cfg.AppEnv, "addr", cfg.Addr(), "db_driver", cfg.Database.Driver, "debug", cfg.Debug)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.AppEnv = getStringEnvOrDefault("APP_ENV", cfg.AppEnv)
	cfg.Host = getStringEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getIntEnvOrDefault("PORT", cfg.Port)
	cfg.Debug = getBoolEnvOrDefault("DEBUG", cfg.Debug)
	cfg.MetricsAddr = getStringEnvOrDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.TrustProxy = getBoolEnvOrDefault("TRUST_PROXY_HEADERS", cfg.TrustProxy)
	cfg.TemplatesPath = getStringEnvOrDefault("TEMPLATES_PATH", cfg.TemplatesPath)
	cfg.StaticPath = getStringEnvOrDefault("STATIC_PATH", cfg.StaticPath)

	cfg.Database.Driver = strings.ToLower(getStringEnvOrDefault("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.DSN = getStringEnvOrDefault("DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.Host = getStringEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnvOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getStringEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getStringEnvOrDefault("DB_PASSWORD", cfg.Database.Password) // пароль БД - только из ENV
	cfg.Database.DBName = getStringEnvOrDefault("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getStringEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Auth.Username = getStringEnvOrDefault("AUTH_USERNAME", cfg.Auth.Username)
	cfg.Auth.Password = getStringEnvOrDefault("AUTH_PASSWORD", cfg.Auth.Password)
	cfg.Auth.PasswordHash = getStringEnvOrDefault("AUTH_PASSWORD_HASH", cfg.Auth.PasswordHash)
	cfg.Auth.SessionLifetimeHours = getIntEnvOrDefault("SESSION_LIFETIME_HOURS", cfg.Auth.SessionLifetimeHours)

	cfg.CorpFilter.Path = getStringEnvOrDefault("CORP_FILTER_PATH", cfg.CorpFilter.Path)
	cfg.CorpFilter.DefaultEnabled = getBoolEnvOrDefault("CORP_FILTER_DEFAULT", cfg.CorpFilter.DefaultEnabled)

	cfg.LoginRateLimit.RPS = getFloatEnvOrDefault("LOGIN_RATE_RPS", cfg.LoginRateLimit.RPS)
	cfg.LoginRateLimit.Burst = getIntEnvOrDefault("LOGIN_RATE_BURST", cfg.LoginRateLimit.Burst)
}

func (c *Config) Validate() error {
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("некорректный порт: %d", c.Port)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("неподдерживаемый драйвер БД %q (допустимо: %s, %s)", c.Database.Driver, DriverPostgres, DriverMySQL)
	}
	if c.Database.DSN == "" {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("параметры подключения к БД (DATABASE_DSN или DB_HOST, DB_USER, DB_NAME) не заданы")
		}
	}
	if c.Auth.Username == "" {
		return fmt.Errorf("AUTH_USERNAME не задан")
	}
	if c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("AUTH_PASSWORD или AUTH_PASSWORD_HASH должен быть задан")
	}
	if c.IsProduction() && c.Auth.PasswordHash == "" && c.Auth.Password == defaultAuthPassword {
		slog.Error("КРИТИЧЕСКАЯ ОШИБКА: пароль оператора по умолчанию недопустим в production")
		return fmt.Errorf("AUTH_PASSWORD по умолчанию недопустим в production")
	}
	if c.Auth.SessionLifetimeHours <= 0 {
		c.Auth.SessionLifetimeHours = 12
	}
	if c.LoginRateLimit.RPS <= 0 {
		c.LoginRateLimit.RPS = 0.2
	}
	if c.LoginRateLimit.Burst <= 0 {
		c.LoginRateLimit.Burst = 5
	}
	if c.Database.PingTimeoutSeconds <= 0 {
		c.Database.PingTimeoutSeconds = 5
	}
	return nil
}

// InitLogger: текстовый вывод с источником для разработки и DEBUG, JSON для остального.
func InitLogger(appEnv string, debug bool) {
	var logger *slog.Logger
	logLevel := slog.LevelInfo

	if appEnv == "development" || debug {
		logLevel = slog.LevelDebug
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: false,
		}))
	}
	slog.SetDefault(logger)
}
