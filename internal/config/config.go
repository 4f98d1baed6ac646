// Пакет config — загрузка и валидация конфигурации Search Bridge
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Search Bridge.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Поисковая платформа ---

	// Базовый URL API поисковой платформы
	PlatformURL string
	// URL endpoint'а получения токена платформы
	PlatformTokenURL string
	// Client ID для Client Credentials flow
	PlatformClientID string
	// Client Secret
	PlatformClientSecret string
	// Идентификатор подключения платформы
	ConnectionID string

	// --- Rox (исходная система) ---

	// Базовый URL Rox: строит url/iconUrl свойств элементов и валидирует
	// ссылки скачивания содержимого перед переходом по ним
	RoxBaseURL string

	// --- Доступ ---

	// Обход дефектного API членства групп платформы: доступ выдаётся
	// через "everyone" ACL-записи элементов вместо членов групп
	ACLWorkaround bool

	// --- JWT (валидация webhook-доставок) ---

	// Issuer JWT исходной системы
	JWTIssuer string
	// URL JWKS endpoint исходной системы
	JWTJWKSURL string

	// --- TLS ---

	// Путь к CA-сертификату для TLS-соединений с платформой и Rox (опционально)
	CACertPath string

	// --- Мониторинг зависимостей ---

	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SB_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("SB_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("SB_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("SB_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// SB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SB_LOG_LEVEL: %w", err)
	}

	// SB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// SB_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("SB_DB_HOST")
	if err != nil {
		return nil, err
	}

	// SB_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("SB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SB_DB_PORT: %w", err)
	}

	// SB_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("SB_DB_NAME")
	if err != nil {
		return nil, err
	}

	// SB_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("SB_DB_USER")
	if err != nil {
		return nil, err
	}

	// SB_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("SB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SB_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Поисковая платформа ---

	// SB_PLATFORM_URL — обязательный
	cfg.PlatformURL, err = getEnvRequired("SB_PLATFORM_URL")
	if err != nil {
		return nil, err
	}
	cfg.PlatformURL = strings.TrimRight(cfg.PlatformURL, "/")

	// SB_PLATFORM_TOKEN_URL — авто-вычисляется из SB_PLATFORM_URL, если не задан
	cfg.PlatformTokenURL = getEnvDefault("SB_PLATFORM_TOKEN_URL", cfg.PlatformURL+"/oauth/token")

	// SB_PLATFORM_CLIENT_ID — обязательный
	cfg.PlatformClientID, err = getEnvRequired("SB_PLATFORM_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// SB_PLATFORM_CLIENT_SECRET — обязательный
	cfg.PlatformClientSecret, err = getEnvRequired("SB_PLATFORM_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	// SB_CONNECTION_ID — идентификатор подключения (по умолчанию roxbridge)
	cfg.ConnectionID = getEnvDefault("SB_CONNECTION_ID", "roxbridge")

	// --- Rox ---

	// SB_ROX_BASE_URL — обязательный, должен быть абсолютным URL
	cfg.RoxBaseURL, err = getEnvRequired("SB_ROX_BASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.RoxBaseURL = strings.TrimRight(cfg.RoxBaseURL, "/")
	if parsed, parseErr := url.Parse(cfg.RoxBaseURL); parseErr != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("SB_ROX_BASE_URL: %q не является абсолютным URL", cfg.RoxBaseURL)
	}

	// --- Доступ ---

	// SB_ACL_WORKAROUND — обход API членства групп (по умолчанию false)
	cfg.ACLWorkaround, err = getEnvBool("SB_ACL_WORKAROUND", false)
	if err != nil {
		return nil, fmt.Errorf("SB_ACL_WORKAROUND: %w", err)
	}

	// --- JWT ---

	// SB_JWT_ISSUER — авто-вычисляется из SB_ROX_BASE_URL, если не задан
	cfg.JWTIssuer = getEnvDefault("SB_JWT_ISSUER", cfg.RoxBaseURL)

	// SB_JWT_JWKS_URL — авто-вычисляется из SB_ROX_BASE_URL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("SB_JWT_JWKS_URL", cfg.RoxBaseURL+"/.well-known/jwks.json")

	// --- TLS ---

	// SB_CA_CERT_PATH — путь к CA-сертификату (опционально)
	cfg.CACertPath = getEnvDefault("SB_CA_CERT_PATH", "")

	// --- Мониторинг зависимостей ---

	// SB_DEPHEALTH_GROUP — группа topologymetrics (по умолчанию rox)
	cfg.DephealthGroup = getEnvDefault("SB_DEPHEALTH_GROUP", "rox")

	// SB_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("SB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// SB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для метрик dephealth).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
