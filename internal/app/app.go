package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"atlas-auth/internal/config"
	"atlas-auth/internal/database"
	"atlas-auth/internal/event"
	"atlas-auth/internal/handler"
	"atlas-auth/internal/mailer"
	"atlas-auth/internal/metrics"
	"atlas-auth/internal/middleware"
	"atlas-auth/internal/repository"
	"atlas-auth/internal/router"
	"atlas-auth/internal/service"
)

type App struct {
	server       *http.Server
	logger       *slog.Logger
	cancel       context.CancelFunc
	workers      sync.WaitGroup
	cleanupFuncs []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{logger: logger, cancel: cancel}

	logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	userRepo := repository.NewUserRepository()
	tokenRepo := repository.NewTokenRepository()
	appRepo := repository.NewApplicationRepository()
	roleRepo := repository.NewRoleRepository()
	userRoleRepo := repository.NewUserRoleRepository()
	schemaRepo := repository.NewSchemaRepository(db.Pool)

	bus := event.NewBus()
	m := metrics.New()

	tenantService := service.NewTenantService(service.TenantServiceConfig{
		Schemas:       schemaRepo,
		Migrator:      database.NewMigrator(cfg.DatabaseURL, logger),
		Scoper:        db,
		Seeder:        repository.NewSeedRepository(),
		DefaultSchema: cfg.DefaultNamespace(),
		ServiceApp:    cfg.ServiceAppCode,
		AdminPassword: cfg.SeedAdminPassword,
		Bus:           bus,
		Logger:        logger,
	})
	if err := tenantService.EnsureDefault(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to prepare default schema: %w", err)
	}
	if err := tenantService.MigrateAll(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to migrate tenant schemas: %w", err)
	}
	logger.Info("database ready", "default_schema", cfg.DefaultSchema)

	mail, err := a.buildMailer(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	engine := service.NewTokenService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	if err := engine.Validate(); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	authService := service.NewAuthService(service.AuthServiceConfig{
		Users:       userRepo,
		Tokens:      tokenRepo,
		UserRoles:   userRoleRepo,
		Engine:      engine,
		Tx:          db,
		Mailer:      mail,
		Bus:         bus,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})
	rbacService := service.NewRBACService(userRoleRepo, cfg.ServiceAppCode)
	authMiddleware := middleware.NewAuthMiddleware(authService, rbacService, cfg.BindFingerprint, cfg.AdminRoleLevels)

	handlers := router.Handlers{
		Health:      handler.NewHealthHandler(db),
		Auth:        handler.NewAuthHandler(authService),
		User:        handler.NewUserHandler(service.NewUserService(userRepo), service.NewUserRoleService(userRoleRepo, userRepo, roleRepo, bus)),
		Application: handler.NewApplicationHandler(service.NewApplicationService(appRepo)),
		Role:        handler.NewRoleHandler(service.NewRoleService(roleRepo, appRepo)),
		Tenant:      handler.NewTenantHandler(tenantService),
	}
	appRouter := router.New(cfg, db, schemaRepo, authMiddleware, m, handlers)

	sweeper := service.NewTokenSweeper(schemaRepo, db, tokenRepo, cfg.DefaultNamespace(), cfg.TokenSweepInterval, bus, logger)
	a.goWorker(func() { sweeper.Run(ctx) })
	a.goWorker(func() { m.Consume(ctx, bus, logger) })

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

// buildMailer picks SMTP delivery when a server is configured and log output
// otherwise. With REDIS_URL set, sends go through a durable queue drained by
// a background worker.
func (a *App) buildMailer(ctx context.Context, cfg *config.Config) (mailer.Mailer, error) {
	renderer, err := mailer.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	var sender mailer.Mailer = mailer.NewLogMailer(renderer, a.logger)
	if cfg.Mail.Server != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.Server,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			StartTLS: cfg.Mail.StartTLS,
			SSL:      cfg.Mail.SSL,
			Timeout:  10 * time.Second,
		}, renderer)
	}

	if cfg.RedisURL == "" {
		return sender, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

	worker := mailer.NewWorker(client, mailer.DefaultQueueKey, sender, a.logger)
	a.goWorker(func() { worker.Run(ctx) })
	a.logger.Info("mail queue enabled", "key", mailer.DefaultQueueKey)

	return mailer.NewRedisQueue(client, mailer.DefaultQueueKey), nil
}

func (a *App) goWorker(fn func()) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn()
	}()
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.logger.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	a.logger.Info("server stopped")
	return nil
}

// cleanup stops background workers before releasing the pool and clients
// they use.
func (a *App) cleanup() {
	a.cancel()
	a.workers.Wait()
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
}
