package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estateadmin/internal/api"
	"estateadmin/internal/config"
	"estateadmin/internal/database"
	"estateadmin/internal/domain"
	"estateadmin/internal/events"
	"estateadmin/internal/export"
	"estateadmin/internal/google"
	"estateadmin/internal/logging"
	"estateadmin/internal/metrics"
	"estateadmin/internal/notify"
	"estateadmin/internal/repository"
	"estateadmin/internal/service"
	"estateadmin/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const badgeCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	badges := buildBadgeRepository(redisClient, logger)
	announcer := initTelegram(cfg, logger)
	distributor := notify.NewDistributor(db, announcer, badges, logger)

	scheduleWriter := initGoogleSheets(ctx, cfg, logger)
	exporter := export.NewExcelExporter(cfg.Exports.Path, logger)
	exportWorker := worker.NewExportWorker(db, exporter, scheduleWriter, redisClient, worker.RetryPolicy{}, logger)
	go exportWorker.Start(ctx)

	bus := events.NewEventBus()
	scheduler := service.NewScheduler(db, db, db, distributor, bus, exportWorker,
		service.SchedulerOptions{
			MaxAdvanceDays:     cfg.Scheduler.MaxAdvanceDays,
			AdvisoryWindowDays: cfg.Scheduler.AdvisoryWindowDays,
		}, logger)

	userService := service.NewUserService(db, logger)
	if err := userService.Seed(ctx, cfg.Seed); err != nil {
		logger.Error().Err(err).Msg("seed users")
		return err
	}

	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
	go backup.Start(ctx)

	startMetrics(ctx, cfg, logger)

	server := api.NewServer(api.Deps{
		Config:          cfg.API,
		SchedulerConfig: cfg.Scheduler,
		DB:              db,
		Scheduler:       scheduler,
		Properties:      service.NewPropertyService(db, logger),
		Users:           userService,
		Notifications:   service.NewNotificationService(db, badges, logger),
		Dashboard:       service.NewDashboardService(db),
		Exporter:        exporter,
		Badges:          badges,
		Logger:          logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, &logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// buildBadgeRepository picks redis-with-memory-failover when redis is up and
// plain memory otherwise.
func buildBadgeRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.BadgeRepository {
	memory := repository.NewMemoryBadgeRepository(badgeCacheTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisBadgeRepository(redisClient, badgeCacheTTL)
	return repository.NewFailoverBadgeRepository(primary, memory, logger)
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) domain.StaffAnnouncer {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.StaffChatIDs) == 0 {
		return nil
	}

	announcer, err := notify.NewTelegramAnnouncer(cfg.Telegram)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without staff channel")
		return nil
	}

	logger.Info().Int("chats", len(cfg.Telegram.StaffChatIDs)).Msg("telegram staff channel connected")
	return announcer
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.ScheduleWriter {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ScheduleSpreadsheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.ScheduleSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without schedule sheet")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		event := logger.Warn().Err(err)
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			event = event.Str("service_account", email)
		}
		event.Msg("google sheets unreachable, share the spreadsheet with the service account; continuing without schedule sheet")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
