// Package balance реализует HTTP-обработчик чтения баланса текущего
// пользователя. Баланс хранится в копейках, рубли считаются на выдаче.
package balance

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
)

// Handler обрабатывает HTTP-запросы баланса.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Баланс текущего пользователя
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Баланс в копейках и рублях"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует или невалиден"
// @Router /auth/balance [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"balance_kopecks": user.Balance,
		"balance_rub":     float64(user.Balance) / 100.0,
	}))
}
