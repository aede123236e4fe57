// Package middlewarectx содержит HTTP middleware сервиса идентификации:
// разрешение личности по bearer-токену, админский вариант с разрешением
// реальной личности, проверку секрета внутренней границы и ограничение
// частоты запросов.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/response"
	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/models"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserKey — ключ текущего (действующего) пользователя в контексте
	UserKey Key = "user"
	// ClaimsKey — ключ claims access-токена в контексте
	ClaimsKey Key = "claims"
)

// IdentityResolver описывает разрешение личности по access-токену.
type IdentityResolver interface {
	// Identity возвращает действующего субъекта токена
	Identity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error)
	// RealIdentity возвращает реального субъекта: для делегированного
	// токена — админа, чьи права проверяются
	RealIdentity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error)
}

// UserFromContext возвращает пользователя, положенного auth-middleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(UserKey).(*models.User)
	return u, ok
}

// ClaimsFromContext возвращает claims access-токена из контекста.
func ClaimsFromContext(ctx context.Context) (*jwtlib.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtlib.Claims)
	return c, ok
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authHeader, "Bearer "), true
}

func writeResolveError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		log.Error("token expired")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("token expired"))
	case errors.Is(err, jwtlib.ErrTokenInvalid):
		log.Error("invalid token")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid token"))
	case errors.Is(err, repository.ErrUserNotFound):
		log.Error("user not found")
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
	default:
		log.Error("failed to resolve identity", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}

// Auth возвращает middleware, разрешающее действующую личность по
// заголовку Authorization и кладущее пользователя и claims в контекст.
func Auth(resolver IdentityResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Auth"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearerToken(r)
			if !ok {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			user, claims, err := resolver.Identity(r.Context(), token)
			if err != nil {
				writeResolveError(w, r, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth возвращает middleware для админских операций: разрешает
// реальную личность (для делегированного токена — админа, а не
// имперсонируемого) и требует роль администратора.
func AdminAuth(resolver IdentityResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminAuth"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearerToken(r)
			if !ok {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			user, claims, err := resolver.RealIdentity(r.Context(), token)
			if err != nil {
				writeResolveError(w, r, log, err)
				return
			}
			if user.Role != models.RoleAdmin {
				log.Error("admin role required", slog.Int64("user_id", user.ID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin only"))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
