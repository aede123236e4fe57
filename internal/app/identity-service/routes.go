// Package identityservice предоставляет маршруты сервиса идентификации.
package identityservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/identity-service/internal/config"
	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	adminbalance "github.com/magabrotheeeer/identity-service/internal/http/handlers/admin/balance"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/admin/impersonate"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/admin/license"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/admin/stopimpersonate"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/balance"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/callback"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/orsettings"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/health"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/internalsync/debit"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/internalsync/setcredentials"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/internalsync/upsertuser"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/internalsync/userstate"
	"github.com/magabrotheeeer/identity-service/internal/http/handlers/partners"
	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	adminservice "github.com/magabrotheeeer/identity-service/internal/services/admin"
	authservice "github.com/magabrotheeeer/identity-service/internal/services/auth"
	syncservice "github.com/magabrotheeeer/identity-service/internal/services/sync"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, cookies *cookiebuilder.Builder,
	authSvc *authservice.AuthService, adminSvc *adminservice.Service, syncSvc *syncservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	// Открытые конечные точки входа, с ограничением частоты
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimit(logger, rate.Limit(10), 20))
		r.Post("/auth", login.New(logger, authSvc, cookies).ServeHTTP)
		r.Post("/auth/refresh", refresh.New(logger, authSvc, cookies).ServeHTTP)
		r.Post("/auth/logout", logout.New(logger, cookies).ServeHTTP)
		r.Get("/auth/callback", callback.New(logger, authSvc, cookies, cfg.Auth).ServeHTTP)
	})

	// Группа с JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.Auth(authSvc, logger))
		r.Get("/auth/me", me.New(logger).ServeHTTP)
		r.Get("/auth/balance", balance.New(logger).ServeHTTP)
		r.Get("/auth/openrouter-settings", orsettings.NewGet(logger).ServeHTTP)
		r.Post("/auth/openrouter-settings", orsettings.NewSet(logger, authSvc).ServeHTTP)
		r.Get("/partners", partners.New(logger, authSvc).ServeHTTP)
	})

	// Админские операции: права проверяются по реальному субъекту токена
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.AdminAuth(authSvc, logger))
		r.Post("/admin/impersonate", impersonate.New(logger, adminSvc, cookies).ServeHTTP)
		r.Post("/admin/stop-impersonate", stopimpersonate.New(logger, adminSvc, cookies).ServeHTTP)
		r.Post("/admin/license", license.New(logger, adminSvc).ServeHTTP)
		r.Post("/admin/balance", adminbalance.New(logger, adminSvc).ServeHTTP)
	})

	// Внутренняя граница синхронизации: общий секрет вместо токенов
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.InternalToken(cfg.UserSyncToken, logger))
		r.Post("/admin/create-user", upsertuser.New(logger, syncSvc).ServeHTTP)
		r.Post("/admin/internal/user-state", userstate.New(logger, syncSvc).ServeHTTP)
		r.Post("/admin/internal/set-credentials", setcredentials.New(logger, syncSvc).ServeHTTP)
		r.Post("/admin/internal/debit", debit.New(logger, syncSvc).ServeHTTP)
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
