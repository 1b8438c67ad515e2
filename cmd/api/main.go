package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turnero/internal/api"
	"turnero/internal/config"
	"turnero/internal/database"
	"turnero/internal/database/postgres"
	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/export"
	"turnero/internal/google"
	"turnero/internal/logging"
	"turnero/internal/metrics"
	"turnero/internal/models"
	"turnero/internal/notify"
	"turnero/internal/repository"
	"turnero/internal/service"
	"turnero/internal/storage"
	"turnero/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// store is what the engine needs from a database driver.
type store interface {
	domain.Repository
	domain.ClientAgenda
	domain.TaskStore
	io.Closer
}

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
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, sqliteDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	var agenda domain.ClientAgenda = db
	var limiter domain.LimiterStore
	memLimiter := repository.NewMemoryLimiter()
	go every(ctx, time.Minute, memLimiter.Sweep)
	if redisClient != nil {
		agenda = repository.NewRedisClientAgenda(redisClient)
		limiter = repository.NewFailoverLimiter(repository.NewRedisLimiter(redisClient), memLimiter, logging.Component(logger, "limiter"))
	} else {
		limiter = memLimiter
	}

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})

	syncWorker := worker.NewSyncWorker(db, redisClient, cfg.Worker, logging.Component(logger, "worker"))
	registerTaskHandlers(ctx, cfg, syncWorker, agenda, logger)

	calendarSvc := service.NewCalendarService(db, logging.Component(logger, "calendar"))
	if err := seedCalendar(ctx, cfg, calendarSvc, logger); err != nil {
		return err
	}

	fileStore, err := initFileStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	services := api.Services{
		Calendar:     calendarSvc,
		Availability: service.NewAvailabilityService(db, agenda, logging.Component(logger, "availability")),
		Booking:      service.NewBookingService(db, agenda, limiter, bus, syncWorker, cfg.Booking, logging.Component(logger, "booking")),
		Cancellation: service.NewCancellationService(db, agenda, bus, syncWorker, cfg.Booking, logging.Component(logger, "cancellation")),
		Exporter:     export.NewExporter(db, fileStore, logging.Component(logger, "export")),
	}

	if sqliteDB != nil && cfg.Backup.Enabled {
		go database.NewBackupService(sqliteDB, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)
	}

	go syncWorker.Start(ctx)
	startMetrics(ctx, cfg, logger)

	return startServers(ctx, cfg, services, logger)
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
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, &logger, closer, nil
}

// openStore returns the configured store and, for SQLite, the concrete
// handle used by the backup service.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store, *database.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.Database.Postgres, logging.Component(logger, "postgres"))
		if err != nil {
			logger.Error().Err(err).Str("host", cfg.Database.Postgres.Host).Msg("init postgres")
			return nil, nil, err
		}
		return pg, nil, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "sqlite"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, nil, err
		}
		return db, db, nil
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(client)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func registerTaskHandlers(ctx context.Context, cfg *config.Config, w *worker.SyncWorker, agenda domain.ClientAgenda, logger *zerolog.Logger) {
	w.Handle(models.TaskClientCopyDelete, worker.ClientCopyDeleteHandler(agenda))

	var notifiers []domain.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		bot, err := notify.NewTelegramBot(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram notices")
		} else {
			notifiers = append(notifiers, notify.NewTelegramNotifier(bot))
		}
	}
	if cfg.Notifications.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notifications.Webhook))
	}
	w.Handle(models.TaskNotifyCancellation, worker.NotifyHandler(notify.NewRouter(notifiers...)))

	mirror := initAgendaMirror(ctx, cfg, logger)
	if mirror == nil {
		w.Disable(models.TaskSheetsUpsert, models.TaskSheetsDelete)
		return
	}
	w.Handle(models.TaskSheetsUpsert, worker.MirrorUpsertHandler(mirror))
	w.Handle(models.TaskSheetsDelete, worker.MirrorDeleteHandler(mirror))
}

func initAgendaMirror(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsMirror {
	if cfg.Google.CredentialsFile == "" || cfg.Google.AgendaSpreadsheetID == "" {
		return nil
	}

	mirror, err := google.NewSheetsMirror(ctx, cfg.Google.CredentialsFile, cfg.Google.AgendaSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without agenda mirror")
		return nil
	}
	if err := mirror.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("agenda spreadsheet not reachable, share it with the service account")
		return nil
	}
	if err := mirror.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("agenda header not written")
	}
	if err := mirror.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("agenda row cache not warmed")
	}

	logger.Info().Msg("google sheets connected")
	return mirror
}

func seedCalendar(ctx context.Context, cfg *config.Config, calendar *service.CalendarService, logger *zerolog.Logger) error {
	path := cfg.CalendarPath
	if env := os.Getenv("CALENDAR_PATH"); env != "" {
		path = env
	}
	if path == "" {
		return nil
	}

	seed, err := config.LoadCalendar(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("calendar_path", path).Msg("calendar seed not found, skipping")
			return nil
		}
		return fmt.Errorf("load calendar: %w", err)
	}

	created, err := calendar.Seed(ctx, seed)
	if err != nil {
		return fmt.Errorf("seed calendar: %w", err)
	}
	logger.Info().Int("created", created).Str("calendar_path", path).Msg("calendar seeded")
	return nil
}

func initFileStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.FileStorage, error) {
	if cfg.Exports.S3.Enabled {
		s3, err := storage.NewS3Storage(ctx, cfg.Exports.S3, logging.Component(logger, "s3"))
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return s3, nil
	}
	return storage.NewLocalStorage(cfg.Exports.Path), nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(ctx context.Context, cfg *config.Config, services api.Services, logger *zerolog.Logger) error {
	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(&cfg.API, api.NewAvailabilityServer(services.Calendar, services.Availability), logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, services, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	go every(ctx, time.Minute, func() {
		removed := 0
		if grpcServer != nil {
			removed += grpcServer.SweepRateLimits()
		}
		if httpServer != nil {
			removed += httpServer.SweepRateLimits()
		}
		if removed > 0 {
			logger.Debug().Int("buckets", removed).Msg("idle rate limit buckets swept")
		}
	})

	logger.Info().Bool("grpc", grpcServer != nil).Bool("http", httpServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("turnero started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("turnero stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
