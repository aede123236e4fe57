// Package impersonate реализует HTTP-обработчик входа администратора под
// чужой учетной записью. Выпущенная пара токенов несет двойной субъект:
// целевого пользователя и реального администратора.
package impersonate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/services/admin"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// Request — имя пользователя, под которым входит администратор.
// Допускаются формы @name и https://t.me/name.
type Request struct {
	Username string `json:"username" validate:"required"`
}

// Service описывает интерфейс делегирования сессии.
type Service interface {
	Impersonate(ctx context.Context, adminID int64, username string) (string, string, error)
}

// Handler обрабатывает HTTP-запросы делегирования.
type Handler struct {
	log      *slog.Logger
	svc      Service
	cookies  *cookiebuilder.Builder
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service, cookies *cookiebuilder.Builder) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		cookies:  cookies,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход под чужой учетной записью
// @Description Выпускает делегированную пару токенов для целевого пользователя. Доступно только администратору.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Имя целевого пользователя"
// @Success 200 {object} response.Response "Делегированный access-токен"
// @Failure 400 {object} response.ErrorResponse "Попытка входа под собой"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/impersonate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.impersonate"

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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	accessToken, refreshToken, err := h.svc.Impersonate(r.Context(), adminUser.ID, req.Username)
	switch {
	case errors.Is(err, admin.ErrSelfImpersonation):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("cannot impersonate yourself"))
		return
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("impersonation failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to impersonate"))
		return
	}

	http.SetCookie(w, h.cookies.Refresh(refreshToken))
	log.Info("impersonation started",
		slog.Int64("admin_id", adminUser.ID),
		slog.String("target", req.Username))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"access_token": accessToken,
	}))
}
