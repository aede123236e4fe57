// Package login реализует HTTP-обработчик входа через телеграм-виджет.
//
// В нём определяется структура Request с полями виджета, выполняется
// декодирование JSON, валидация полей и делегирование входа сервису
// аутентификации. При успехе access-токен возвращается в теле ответа,
// refresh-токен уходит только в http-only куку.
package login

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
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/lib/telegram"
	"github.com/magabrotheeeer/identity-service/internal/services/auth"
)

// Request — данные телеграм-виджета плюс опциональный инвайт-код.
type Request struct {
	ID            int64   `json:"id" validate:"required"`
	AuthDate      int64   `json:"auth_date" validate:"required"`
	Hash          string  `json:"hash" validate:"required"`
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Username      *string `json:"username"`
	PhotoURL      *string `json:"photo_url"`
	InviteRefCode *string `json:"invite_ref_code"`
}

// Service описывает интерфейс бизнес-логики входа.
type Service interface {
	Login(ctx context.Context, data telegram.LoginData, inviteRefCode string) (*auth.TokenPair, error)
}

// Handler обрабатывает HTTP-запросы входа.
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ServeHTTP godoc
// @Summary Вход через телеграм-виджет
// @Description Проверяет подпись данных виджета, создает или обновляет пользователя, возвращает access-токен и выставляет refresh-куку.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body Request true "Данные телеграм-виджета"
// @Success 200 {object} response.Response "Успешный вход"
// @Failure 400 {object} response.ErrorResponse "Просроченная или невалидная подпись"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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

	data := telegram.LoginData{
		ID:        req.ID,
		FirstName: deref(req.FirstName),
		LastName:  deref(req.LastName),
		Username:  deref(req.Username),
		PhotoURL:  deref(req.PhotoURL),
		AuthDate:  req.AuthDate,
		Hash:      req.Hash,
	}

	pair, err := h.svc.Login(r.Context(), data, deref(req.InviteRefCode))
	switch {
	case errors.Is(err, telegram.ErrExpiredAssertion):
		log.Error("expired login assertion", slog.Int64("id", req.ID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("telegram authentication session is expired"))
		return
	case errors.Is(err, telegram.ErrSignatureMismatch):
		log.Error("signature mismatch", slog.Int64("id", req.ID))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("telegram data signature mismatch"))
		return
	case err != nil:
		log.Error("login failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to login"))
		return
	}

	http.SetCookie(w, h.cookies.Refresh(pair.RefreshToken))
	log.Info("login success", slog.Int64("id", req.ID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"access_token": pair.AccessToken,
	}))
}
