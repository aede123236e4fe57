// Package stopimpersonate реализует HTTP-обработчик возврата администратора
// в собственную сессию после делегированного входа.
package stopimpersonate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
)

// Service описывает интерфейс завершения делегированной сессии.
type Service interface {
	StopImpersonate(ctx context.Context, adminID int64) (string, string, error)
}

// Handler обрабатывает HTTP-запросы завершения делегирования.
type Handler struct {
	log     *slog.Logger
	svc     Service
	cookies *cookiebuilder.Builder
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service, cookies *cookiebuilder.Builder) *Handler {
	return &Handler{
		log:     log,
		svc:     svc,
		cookies: cookies,
	}
}

// ServeHTTP godoc
// @Summary Завершение делегированной сессии
// @Description Выпускает обычную пару токенов для реального администратора. Права проверяются по реальному субъекту, поэтому вызов доступен и из делегированной сессии.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Access-токен администратора"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/stop-impersonate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.stopimpersonate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	adminUser, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	accessToken, refreshToken, err := h.svc.StopImpersonate(r.Context(), adminUser.ID)
	if err != nil {
		log.Error("failed to stop impersonation", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to stop impersonation"))
		return
	}

	http.SetCookie(w, h.cookies.Refresh(refreshToken))
	log.Info("impersonation stopped", slog.Int64("admin_id", adminUser.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"access_token": accessToken,
	}))
}
