// Пакет config — загрузка и валидация конфигурации Submission Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Submission Module.
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

	// --- Object storage (S3) ---

	// Имя бакета для архивированных конвертов
	S3Bucket string
	// Регион S3
	S3Region string
	// Кастомный endpoint (MinIO/LocalStack), пустая строка — AWS
	S3Endpoint string
	// Префикс ключей объектов
	S3Prefix string

	// --- SDES (downstream доставка) ---

	// Базовый URL SDES API
	SDESURL string
	// Идентификатор клиента для заголовка X-Client-Id
	SDESClientID string
	// Тип информации в уведомлении fileready
	SDESInformationType string
	// Путь к CA-сертификату для TLS-соединений с SDES (опционально)
	SDESCACertPath string

	// --- Приём отправок ---

	// Рабочая директория для сборки конвертов
	WorkDir string
	// Максимальный размер принимаемого файла в байтах
	MaxFileSize int64
	// Бюджет времени на архивацию и уведомление одной отправки
	SubmitTimeout time.Duration

	// --- JWT ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	KeycloakCACertPath string
	// Интервал обновления JWKS-кэша
	JWTJWKSRefreshInterval time.Duration
	// Допуск на рассинхронизацию часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Маппинг групп → ролей ---

	// Группы Keycloak, дающие роль admin (через запятую)
	RoleAdminGroups []string
	// Группы Keycloak, дающие роль readonly (через запятую)
	RoleReadonlyGroups []string

	// --- Мониторинг зависимостей ---

	// Имя группы topologymetrics
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

	// SM_PORT — порт HTTP-сервера (по умолчанию 8001)
	cfg.Port, err = getEnvInt("SM_PORT", 8001)
	if err != nil {
		return nil, fmt.Errorf("SM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("SM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// SM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SM_LOG_LEVEL: %w", err)
	}

	// SM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// SM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("SM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// SM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("SM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SM_DB_PORT: %w", err)
	}

	// SM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("SM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// SM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("SM_DB_USER")
	if err != nil {
		return nil, err
	}

	// SM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("SM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Object storage ---

	// SM_S3_BUCKET — обязательный
	cfg.S3Bucket, err = getEnvRequired("SM_S3_BUCKET")
	if err != nil {
		return nil, err
	}

	// SM_S3_REGION — регион (по умолчанию eu-west-2)
	cfg.S3Region = getEnvDefault("SM_S3_REGION", "eu-west-2")

	// SM_S3_ENDPOINT — кастомный endpoint для MinIO/LocalStack (опционально)
	cfg.S3Endpoint = getEnvDefault("SM_S3_ENDPOINT", "")

	// SM_S3_PREFIX — префикс ключей (по умолчанию "submissions/")
	cfg.S3Prefix = getEnvDefault("SM_S3_PREFIX", "submissions/")

	// --- SDES ---

	// SM_SDES_URL — обязательный
	cfg.SDESURL, err = getEnvRequired("SM_SDES_URL")
	if err != nil {
		return nil, err
	}
	cfg.SDESURL = strings.TrimRight(cfg.SDESURL, "/")

	// SM_SDES_CLIENT_ID — обязательный
	cfg.SDESClientID, err = getEnvRequired("SM_SDES_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	// SM_SDES_INFORMATION_TYPE — тип информации (по умолчанию dms-submission)
	cfg.SDESInformationType = getEnvDefault("SM_SDES_INFORMATION_TYPE", "dms-submission")

	// SM_SDES_CA_CERT_PATH — путь к CA-сертификату SDES (опционально)
	cfg.SDESCACertPath = getEnvDefault("SM_SDES_CA_CERT_PATH", "")

	// --- Приём отправок ---

	// SM_WORK_DIR — рабочая директория (по умолчанию <tmp>/submission-module)
	cfg.WorkDir = getEnvDefault("SM_WORK_DIR", filepath.Join(os.TempDir(), "submission-module"))

	// SM_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 МБ)
	maxFileSize, err := getEnvInt("SM_MAX_FILE_SIZE", 100*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("SM_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize < 1 {
		return nil, fmt.Errorf("SM_MAX_FILE_SIZE: значение %d должно быть положительным", maxFileSize)
	}
	cfg.MaxFileSize = int64(maxFileSize)

	// SM_SUBMIT_TIMEOUT — бюджет времени обработки отправки (по умолчанию 30s)
	cfg.SubmitTimeout, err = getEnvDuration("SM_SUBMIT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SUBMIT_TIMEOUT: %w", err)
	}

	// --- JWT ---

	// SM_KEYCLOAK_URL — обязательный
	cfg.KeycloakURL, err = getEnvRequired("SM_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// SM_KEYCLOAK_REALM — realm (по умолчанию docflow)
	cfg.KeycloakRealm = getEnvDefault("SM_KEYCLOAK_REALM", "docflow")

	// SM_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("SM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// SM_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("SM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	// SM_KEYCLOAK_CA_CERT_PATH — путь к CA-сертификату Keycloak (опционально)
	cfg.KeycloakCACertPath = getEnvDefault("SM_KEYCLOAK_CA_CERT_PATH", "")

	// SM_JWT_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 5m)
	cfg.JWTJWKSRefreshInterval, err = getEnvDuration("SM_JWT_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SM_JWT_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// SM_JWT_LEEWAY — допуск на рассинхронизацию часов (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("SM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_JWT_LEEWAY: %w", err)
	}

	// --- Маппинг групп → ролей ---

	// SM_ROLE_ADMIN_GROUPS — группы для роли admin (по умолчанию "docflow-admins")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("SM_ROLE_ADMIN_GROUPS", "docflow-admins"))

	// SM_ROLE_READONLY_GROUPS — группы для роли readonly (по умолчанию "docflow-viewers")
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("SM_ROLE_READONLY_GROUPS", "docflow-viewers"))

	// --- Мониторинг зависимостей ---

	// SM_DEPHEALTH_GROUP — имя группы topologymetrics (по умолчанию docflow)
	cfg.DephealthGroup = getEnvDefault("SM_DEPHEALTH_GROUP", "docflow")

	// SM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("SM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// SM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SM_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для лейблов topologymetrics, не для подключения).
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
