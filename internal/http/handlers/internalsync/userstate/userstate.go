// Package userstate реализует обработчик внутренней границы для чтения
// баланса и учетных данных пользователя другим доверенным сервисом.
package userstate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/services/sync"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// Request — идентификатор пользователя.
type Request struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// Service описывает интерфейс чтения состояния пользователя.
type Service interface {
	UserState(ctx context.Context, userID int64) (*sync.State, error)
}

// Handler обрабатывает HTTP-запросы состояния пользователя.
type Handler struct {
	log      *slog.Logger
	svc      Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Состояние пользователя
// @Description Внутренняя операция: баланс и учетные данные OpenRouter.
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Общий секрет внутренней границы"
// @Param request body Request true "Идентификатор пользователя"
// @Success 200 {object} response.Response "Состояние пользователя"
// @Failure 401 {object} response.ErrorResponse "Неверный внутренний токен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/internal/user-state [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.internalsync.userstate"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

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

	state, err := h.svc.UserState(r.Context(), req.UserID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to read user state", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to read user state"))
		return
	}

	render.JSON(w, r, response.OKWithData(state))
}
