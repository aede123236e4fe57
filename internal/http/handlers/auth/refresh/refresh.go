// Package refresh реализует HTTP-обработчик ротации токенов сессии по
// refresh-куке. Каждый вызов выпускает новую пару токенов и перевыставляет
// куку; старый refresh-токен не отзывается.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/services/auth"
)

// Service описывает интерфейс бизнес-логики ротации токенов.
type Service interface {
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
}

// Handler обрабатывает HTTP-запросы ротации.
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
// @Summary Ротация токенов сессии
// @Description Читает refresh-токен из куки, проверяет его и выпускает новую пару токенов. Для делегированного токена реальный субъект обязан оставаться администратором.
// @Tags auth
// @Produce json
// @Success 200 {object} response.Response "Новый access-токен"
// @Failure 401 {object} response.ErrorResponse "Кука отсутствует или токен невалиден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/refresh [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.refresh"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	cookie, err := r.Cookie(cookiebuilder.Name)
	if err != nil || cookie.Value == "" {
		log.Error("no refresh token cookie found")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("no refresh token cookie found"))
		return
	}

	pair, err := h.svc.Refresh(r.Context(), cookie.Value)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		log.Error("refresh rejected", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid refresh token"))
		return
	case err != nil:
		log.Error("failed to refresh tokens", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to refresh tokens"))
		return
	}

	http.SetCookie(w, h.cookies.Refresh(pair.RefreshToken))
	log.Info("tokens rotated")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"access_token": pair.AccessToken,
	}))
}
