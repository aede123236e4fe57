// Package license реализует HTTP-обработчик продления лицензии
// пользователя администратором.
package license

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// Request — имя пользователя и число дней продления.
type Request struct {
	Username string `json:"username" validate:"required"`
	Days     int    `json:"days" validate:"required,gt=0"`
}

// Service описывает интерфейс продления лицензии.
type Service interface {
	ExtendLicense(ctx context.Context, username string, days int) (time.Time, error)
}

// Handler обрабатывает HTTP-запросы продления лицензии.
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
// @Summary Продление лицензии
// @Description Продлевает лицензию на заданное число дней: от текущего момента, если лицензия истекла или отсутствует, иначе от текущей даты окончания.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Пользователь и число дней"
// @Success 200 {object} response.Response "Новая дата окончания лицензии"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/license [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.license"

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

	endDate, err := h.svc.ExtendLicense(r.Context(), req.Username, req.Days)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to extend license", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to extend license"))
		return
	}

	log.Info("license extended",
		slog.String("username", req.Username),
		slog.Int("days", req.Days))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"username":         req.Username,
		"license_end_date": endDate,
	}))
}
