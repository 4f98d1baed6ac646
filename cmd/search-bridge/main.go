// Точка входа Search Bridge — мост синхронизации пулов знаний Rox
// во внешнюю поисковую платформу.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиент платформы и сервисный слой, выполняет bootstrap подключения,
// запускает topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/search-bridge/internal/api"
	"github.com/bigkaa/search-bridge/internal/api/handlers"
	"github.com/bigkaa/search-bridge/internal/api/middleware"
	"github.com/bigkaa/search-bridge/internal/config"
	"github.com/bigkaa/search-bridge/internal/database"
	"github.com/bigkaa/search-bridge/internal/repository"
	"github.com/bigkaa/search-bridge/internal/searchplatform"
	"github.com/bigkaa/search-bridge/internal/server"
	"github.com/bigkaa/search-bridge/internal/service"
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
	logger.Info("Search Bridge запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("acl_workaround", cfg.ACLWorkaround),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("SB_DEPHEALTH_GROUP") == "" {
		logger.Warn("SB_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
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
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. HTTP-клиент с кастомным CA (для платформы и Rox)
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.CACertPath != "" {
		httpClient, err = buildHTTPClientWithCA(cfg.CACertPath)
		if err != nil {
			logger.Error("Ошибка загрузки CA-сертификата",
				slog.String("path", cfg.CACertPath),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	// 6. Клиент поисковой платформы
	platform := searchplatform.New(
		cfg.PlatformURL,
		cfg.PlatformTokenURL,
		cfg.PlatformClientID,
		cfg.PlatformClientSecret,
		cfg.ConnectionID,
		httpClient,
		logger,
	)
	logger.Info("Клиент поисковой платформы создан",
		slog.String("url", cfg.PlatformURL),
		slog.String("connection_id", cfg.ConnectionID),
	)

	// 7. Repositories
	groupRepo := repository.NewGroupMappingRepository(pool)
	itemRepo := repository.NewItemMappingRepository(pool)
	membershipRepo := repository.NewMembershipRepository(pool)
	attachments := repository.NewAttachmentWriter(repository.NewTxRunner(pool))

	// 8. Services
	bootstrapSvc := service.NewBootstrapService(platform, cfg.ConnectionID, logger)
	groupSvc := service.NewGroupService(platform, groupRepo, membershipRepo, logger)
	itemSvc := service.NewItemService(
		platform, bootstrapSvc, groupSvc,
		itemRepo, membershipRepo, attachments,
		cfg.RoxBaseURL, cfg.ACLWorkaround,
		logger,
	)
	groupSvc.SetDetacher(itemSvc)
	memberSvc := service.NewMemberService(platform, groupSvc, cfg.ACLWorkaround, logger)
	dispatcher := service.NewDispatcher(groupSvc, itemSvc, memberSvc, cfg.RoxBaseURL, httpClient, logger)

	// 9. Начальный bootstrap подключения и схемы платформы.
	// Ошибка не фатальна: платформа может подняться позже, bootstrap
	// повторяется при обработке каждого события.
	logger.Info("Bootstrap подключения платформы...")
	if err := bootstrapSvc.EnsureConnection(ctx); err != nil {
		logger.Warn("Bootstrap подключения не выполнен, повтор при первом событии",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Подключение и схема платформы готовы")
	}

	// 10. Readiness checkers (PostgreSQL + платформа)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, platform)

	// 11. OpenAPI контракт для валидации запросов
	_, contractRouter, err := api.LoadContract()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		dispatcher,
		groupRepo,
		itemRepo,
		membershipRepo,
		logger,
	)

	// 13. JWT middleware — аутентификация webhook-доставок Rox
	jwtAuth, err := middleware.NewJWTAuth(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWTIssuer, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer jwtAuth.Close()
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 14. topologymetrics — мониторинг зависимостей (PostgreSQL + платформа)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"search-bridge",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.PlatformURL,
		cfg.DephealthCheckInterval,
		logger,
	)
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

	// 15. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, contractRouter, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 16. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Search Bridge остановлен")
}

// buildHTTPClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}
