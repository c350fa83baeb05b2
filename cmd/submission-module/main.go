// Точка входа Submission Module — модуль приёма отправок системы Docflow.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует object storage и SDES клиенты, создаёт сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/arturkryukov/docflow/submission-module/internal/api/handlers"
	"github.com/arturkryukov/docflow/submission-module/internal/api/middleware"
	"github.com/arturkryukov/docflow/submission-module/internal/config"
	"github.com/arturkryukov/docflow/submission-module/internal/database"
	"github.com/arturkryukov/docflow/submission-module/internal/envelope"
	"github.com/arturkryukov/docflow/submission-module/internal/objectstore"
	"github.com/arturkryukov/docflow/submission-module/internal/repository"
	"github.com/arturkryukov/docflow/submission-module/internal/sdes"
	"github.com/arturkryukov/docflow/submission-module/internal/server"
	"github.com/arturkryukov/docflow/submission-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Submission Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("SM_DEPHEALTH_GROUP") == "" {
		logger.Warn("SM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Object storage клиент (S3)
	s3Client, err := objectstore.New(ctx, objectstore.Config{
		Bucket:   cfg.S3Bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
		Prefix:   cfg.S3Prefix,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания object storage клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Object storage клиент создан",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)

	// 6. SDES клиент
	sdesClient, err := sdes.New(cfg.SDESURL, cfg.SDESClientID, cfg.SDESCACertPath, logger)
	if err != nil {
		logger.Error("Ошибка создания SDES-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("SDES клиент создан", slog.String("url", cfg.SDESURL))

	// 7. Сборщик конвертов
	builder, err := envelope.NewBuilder(cfg.WorkDir)
	if err != nil {
		logger.Error("Ошибка подготовки рабочей директории",
			slog.String("work_dir", cfg.WorkDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 8. Repository и сервисный слой
	itemRepo := repository.NewSubmissionItemRepository(pool)
	submissionSvc := service.NewSubmissionService(
		itemRepo,
		s3Client,
		sdesClient,
		builder,
		cfg.SDESInformationType,
		logger,
	)

	// 9. Readiness checkers (PostgreSQL, Keycloak, object storage, SDES)
	pgChecker := database.NewReadinessChecker(pool)
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.KeycloakCACertPath, 5*time.Second)
	if err != nil {
		logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, kcChecker, s3Client, sdesClient)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, submissionSvc, cfg.MaxFileSize, logger)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.KeycloakCACertPath,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleReadonlyGroups,
		cfg.JWTJWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       "submission-module",
		Group:           cfg.DephealthGroup,
		PGConnURL:       cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		SDESURL:         cfg.SDESURL,
		S3Endpoint:      cfg.S3Endpoint,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Submission Module остановлен")
}
