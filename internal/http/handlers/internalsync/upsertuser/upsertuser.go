// Package upsertuser реализует обработчик внутренней границы для создания
// или частичного обновления пользователя другим доверенным сервисом.
// Отсутствующие и null-поля запроса не затирают существующие значения.
package upsertuser

import (
	"context"
	"encoding/json"
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

// Request — частичное представление пользователя: обязателен только ID.
type Request struct {
	ID             int64      `json:"id" validate:"required"`
	Username       *string    `json:"username"`
	FirstName      *string    `json:"first_name"`
	LastName       *string    `json:"last_name"`
	PhotoURL       *string    `json:"photo_url"`
	Role           *int       `json:"role"`
	LicenseEndDate *time.Time `json:"license_end_date"`
	Balance        *int64     `json:"balance"`
	RefCode        *string    `json:"ref_code"`
	ORApiKey       *string    `json:"or_api_key"`
	ORApiHash      *string    `json:"or_api_hash"`
	ORModel        *string    `json:"or_model"`
}

// Service описывает интерфейс синхронизации пользователей.
type Service interface {
	UpsertUser(ctx context.Context, p repository.UpsertUserParams) (string, error)
}

// Handler обрабатывает HTTP-запросы синхронизации пользователя.
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
// @Summary Создание или частичное обновление пользователя
// @Description Внутренняя операция для доверенных сервисов. Отсутствующие и null-поля не изменяются.
// @Tags internal
// @Accept json
// @Produce json
// @Param X-Internal-Token header string true "Общий секрет внутренней границы"
// @Param request body Request true "Частичное представление пользователя"
// @Success 200 {object} response.Response "Статус created или updated"
// @Failure 401 {object} response.ErrorResponse "Неверный внутренний токен"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/create-user [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.internalsync.upsertuser"

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

	status, err := h.svc.UpsertUser(r.Context(), repository.UpsertUserParams{
		ID:             req.ID,
		Username:       req.Username,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PhotoURL:       req.PhotoURL,
		Role:           req.Role,
		LicenseEndDate: req.LicenseEndDate,
		Balance:        req.Balance,
		RefCode:        req.RefCode,
		ORApiKey:       req.ORApiKey,
		ORApiHash:      req.ORApiHash,
		ORModel:        req.ORModel,
	})
	if err != nil {
		log.Error("failed to upsert user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to upsert user"))
		return
	}

	log.Info("user synced", slog.Int64("user_id", req.ID), slog.String("status", status))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status":  status,
		"user_id": req.ID,
	}))
}
