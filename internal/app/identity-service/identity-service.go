// Package identityservice собирает сервис идентификации: хранилище,
// миграции, кэш, публикацию событий, бизнес-сервисы и HTTP-сервер.
package identityservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/identity-service/internal/cache"
	"github.com/magabrotheeeer/identity-service/internal/config"
	"github.com/magabrotheeeer/identity-service/internal/events"
	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/lib/refcode"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/lib/telegram"
	"github.com/magabrotheeeer/identity-service/internal/migrations"
	adminservice "github.com/magabrotheeeer/identity-service/internal/services/admin"
	authservice "github.com/magabrotheeeer/identity-service/internal/services/auth"
	syncservice "github.com/magabrotheeeer/identity-service/internal/services/sync"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// App сервис идентификации со всеми зависимостями.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	publisher *events.Publisher
}

// New инициализирует зависимости и собирает приложение. Redis и RabbitMQ
// опциональны: без адреса в конфиге сервис работает без кэша и событий.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	var stateCache syncservice.StateCache
	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		stateCache = cacheRedis
	} else {
		logger.Warn("redis address is empty, user state cache is disabled")
	}

	var publisher *events.Publisher
	if cfg.RabbitMQAddress != "" {
		publisher, err = events.New(cfg.RabbitMQAddress)
		if err != nil {
			// события — вспомогательный контур, без брокера сервис живет
			logger.Warn("rabbitmq is unavailable, account events are disabled", sl.Err(err))
			publisher = nil
		}
	} else {
		logger.Warn("rabbitmq address is empty, account events are disabled")
	}

	tokens := jwtlib.NewMaker(cfg.JWTSecretKey, cfg.AccessTTL, cfg.RefreshDays)
	verifier := telegram.NewVerifier(cfg.BotToken)
	refcodes := refcode.NewAllocator(db)
	cookies := cookiebuilder.New(cfg.Auth, cfg.RefreshDays)

	authSvc := authservice.NewAuthService(db, tokens, verifier, refcodes, publisher, logger)
	adminSvc := adminservice.New(db, tokens)
	syncSvc := syncservice.New(db, stateCache, publisher, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, cookies, authSvc, adminSvc, syncSvc)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		publisher: publisher,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.publisher.Close()
		a.db.DB.Close()
		return err
	}
}
