// Package setcredentials реализует обработчик внутренней границы для
// частичного обновления учетных данных OpenRouter доверенным сервисом.
package setcredentials

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

// Request — идентификатор пользователя и новые значения учетных данных.
// Nil-поля не изменяются.
type Request struct {
	UserID  int64   `json:"user_id" validate:"required"`
	ApiKey  *string `json:"api_key"`
	ApiHash *string `json:"api_hash"`
	Model   *string `json:"model"`
}

// Service описывает интерфейс обновления учетных данных.
type Service interface {
	SetOpenRouterSettings(ctx context.Context, userID int64, apiKey, apiHash, model *string) (*sync.State, error)
}

// Handler обрабатывает HTTP-запросы обновления учетных данных.
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
// @Summary Обновление учетных данных OpenRouter
// @Description Внутренняя операция: частично обновляет учетные данные пользователя.
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Общий секрет внутренней границы"
// @Param request body Request true "Идентификатор пользователя и учетные данные"
// @Success 200 {object} response.Response "Свежее состояние пользователя"
// @Failure 401 {object} response.ErrorResponse "Неверный внутренний токен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/internal/set-credentials [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.internalsync.setcredentials"

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

	state, err := h.svc.SetOpenRouterSettings(r.Context(), req.UserID, req.ApiKey, req.ApiHash, req.Model)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to update credentials", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update credentials"))
		return
	}

	log.Info("credentials updated", slog.Int64("user_id", req.UserID))
	render.JSON(w, r, response.OKWithData(state))
}
