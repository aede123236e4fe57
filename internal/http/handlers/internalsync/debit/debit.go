// Package debit реализует обработчик внутренней границы для условного
// списания баланса. Списание атомарно относительно конкурентных вызовов,
// исход передается статусом в теле ответа при HTTP 200.
package debit

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
)

// Request — идентификатор пользователя и сумма списания в копейках.
// Знак суммы проверяет сервис: ноль и отрицательные значения — 400,
// а не ошибка валидации.
type Request struct {
	UserID        int64 `json:"user_id" validate:"required"`
	AmountKopecks int64 `json:"amount_kopecks"`
}

// Service описывает интерфейс условного списания.
type Service interface {
	DebitBalance(ctx context.Context, userID, amount int64) (*sync.DebitResult, error)
}

// Handler обрабатывает HTTP-запросы списания.
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
// @Summary Условное списание баланса
// @Description Внутренняя операция: списывает сумму, только если баланс достаточен. Исход (ok, insufficient_funds, not_found) передается в теле ответа.
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Общий секрет внутренней границы"
// @Param request body Request true "Идентификатор пользователя и сумма в копейках"
// @Success 200 {object} response.Response "Результат списания"
// @Failure 400 {object} response.ErrorResponse "Неположительная сумма"
// @Failure 401 {object} response.ErrorResponse "Неверный внутренний токен"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/internal/debit [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.internalsync.debit"

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

	result, err := h.svc.DebitBalance(r.Context(), req.UserID, req.AmountKopecks)
	switch {
	case errors.Is(err, sync.ErrInvalidAmount):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("amount_kopecks must be positive"))
		return
	case err != nil:
		log.Error("failed to debit balance", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to debit balance"))
		return
	}

	log.Info("debit processed",
		slog.Int64("user_id", req.UserID),
		slog.Int64("amount_kopecks", req.AmountKopecks),
		slog.String("status", result.Status))
	render.JSON(w, r, response.OKWithData(result))
}
