// Package logout реализует HTTP-обработчик выхода: удаляет refresh-куку.
// Серверного списка отзыва нет, ранее выпущенный refresh-токен остается
// валидным до естественного истечения.
package logout

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
)

// Handler обрабатывает HTTP-запросы выхода.
type Handler struct {
	log     *slog.Logger
	cookies *cookiebuilder.Builder
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, cookies *cookiebuilder.Builder) *Handler {
	return &Handler{
		log:     log,
		cookies: cookies,
	}
}

// ServeHTTP godoc
// @Summary Выход
// @Description Удаляет refresh-куку.
// @Tags auth
// @Produce json
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.Clear())
	render.JSON(w, r, response.OK())
}
