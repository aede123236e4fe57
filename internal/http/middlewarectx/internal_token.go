package middlewarectx

import (
	"crypto/hmac"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/response"
)

// InternalTokenHeader заголовок с общим секретом внутренней границы.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken возвращает middleware внутренней границы синхронизации.
// Несконфигурированный секрет — 503 для любого вызова; неверный токен —
// 401. Сравнение токенов выполняется за константное время.
func InternalToken(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.InternalToken"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if secret == "" {
				log.Error("user sync token is not configured")
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.Error("user sync token is not configured"))
				return
			}

			got := r.Header.Get(InternalTokenHeader)
			if got == "" || !hmac.Equal([]byte(got), []byte(secret)) {
				log.Error("invalid internal token")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid internal token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
