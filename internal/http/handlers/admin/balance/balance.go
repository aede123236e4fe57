// Package balance реализует HTTP-обработчик пополнения баланса
// пользователя администратором. Сумма принимается в рублях и хранится
// в копейках.
package balance

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
	"github.com/magabrotheeeer/identity-service/internal/services/admin"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// Request — имя пользователя и сумма пополнения в рублях.
type Request struct {
	Username  string `json:"username" validate:"required"`
	AmountRub int64  `json:"amount_rub" validate:"required,gt=0"`
}

// Service описывает интерфейс пополнения баланса.
type Service interface {
	AddBalance(ctx context.Context, username string, amountRub int64) (int64, error)
}

// Handler обрабатывает HTTP-запросы пополнения баланса.
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
// @Summary Пополнение баланса
// @Description Зачисляет пользователю сумму в рублях, баланс возвращается в копейках.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Пользователь и сумма в рублях"
// @Success 200 {object} response.Response "Новый баланс"
// @Failure 400 {object} response.ErrorResponse "Неположительная сумма"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/balance [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.balance"

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

	newBalance, err := h.svc.AddBalance(r.Context(), req.Username, req.AmountRub)
	switch {
	case errors.Is(err, admin.ErrInvalidAmount):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("amount must be positive"))
		return
	case errors.Is(err, repository.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to add balance", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to add balance"))
		return
	}

	log.Info("balance topped up",
		slog.String("username", req.Username),
		slog.Int64("amount_rub", req.AmountRub))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"username":        req.Username,
		"balance_kopecks": newBalance,
	}))
}
