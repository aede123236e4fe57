// Package orsettings реализует обработчики чтения и частичного обновления
// настроек OpenRouter текущего пользователя. Отсутствующие в запросе поля
// не изменяются.
package orsettings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/models"
)

// Settings — представление настроек OpenRouter в ответе.
type Settings struct {
	ApiKey  *string `json:"api_key"`
	ApiHash *string `json:"api_hash"`
	Model   *string `json:"model"`
}

// Request — частичное обновление настроек: nil-поля не изменяются.
type Request struct {
	ApiKey  *string `json:"api_key"`
	ApiHash *string `json:"api_hash"`
	Model   *string `json:"model"`
}

// Service описывает интерфейс обновления настроек.
type Service interface {
	UpdateSettings(ctx context.Context, userID int64, apiKey, apiHash, model *string) (*models.User, error)
}

func settingsOf(user *models.User) Settings {
	return Settings{
		ApiKey:  user.ORApiKey,
		ApiHash: user.ORApiHash,
		Model:   user.ORModel,
	}
}

// GetHandler обрабатывает чтение настроек.
type GetHandler struct {
	log *slog.Logger
}

// NewGet создает новый экземпляр GetHandler.
func NewGet(log *slog.Logger) *GetHandler {
	return &GetHandler{log: log}
}

// ServeHTTP godoc
// @Summary Настройки OpenRouter
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Настройки"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует или невалиден"
// @Router /auth/openrouter-settings [get]
func (h *GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	render.JSON(w, r, response.OKWithData(settingsOf(user)))
}

// SetHandler обрабатывает частичное обновление настроек.
type SetHandler struct {
	log *slog.Logger
	svc Service
}

// NewSet создает новый экземпляр SetHandler.
func NewSet(log *slog.Logger, svc Service) *SetHandler {
	return &SetHandler{log: log, svc: svc}
}

// ServeHTTP godoc
// @Summary Обновление настроек OpenRouter
// @Description Частично обновляет настройки: отсутствующие поля не изменяются. Хотя бы одно поле обязательно.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body Request true "Новые значения настроек"
// @Success 200 {object} response.Response "Обновленные настройки"
// @Failure 400 {object} response.ErrorResponse "Пустое обновление"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует или невалиден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/openrouter-settings [post]
func (h *SetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.orsettings.Set"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFromContext(r.Context())
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

	if req.ApiKey == nil && req.ApiHash == nil && req.Model == nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("no fields to update"))
		return
	}

	updated, err := h.svc.UpdateSettings(r.Context(), user.ID, req.ApiKey, req.ApiHash, req.Model)
	if err != nil {
		log.Error("failed to update settings", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update settings"))
		return
	}

	log.Info("openrouter settings updated", slog.Int64("user_id", user.ID))
	render.JSON(w, r, response.OKWithData(settingsOf(updated)))
}
