// Package partners реализует HTTP-обработчик реферальной сводки:
// кто пригласил текущего пользователя и кого пригласил он сам.
package partners

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/models"
)

// Partner — краткое представление пользователя в реферальной сводке.
type Partner struct {
	ID        int64   `json:"id"`
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	PhotoURL  *string `json:"photo_url"`
}

// Service описывает интерфейс реферальной сводки.
type Service interface {
	Partners(ctx context.Context, user *models.User) (*models.User, []*models.User, error)
}

// Handler обрабатывает HTTP-запросы реферальной сводки.
type Handler struct {
	log *slog.Logger
	svc Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{log: log, svc: svc}
}

func partnerOf(user *models.User) *Partner {
	if user == nil {
		return nil
	}
	return &Partner{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		PhotoURL:  user.PhotoURL,
	}
}

// ServeHTTP godoc
// @Summary Реферальная сводка
// @Description Возвращает пригласившего пользователя и список приглашенных им.
// @Tags partners
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Реферальная сводка"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует или невалиден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /partners [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.partners"

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

	referrer, referrals, err := h.svc.Partners(r.Context(), user)
	if err != nil {
		log.Error("failed to collect partners", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to collect partners"))
		return
	}

	items := make([]*Partner, 0, len(referrals))
	for _, ref := range referrals {
		items = append(items, partnerOf(ref))
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"referrer":  partnerOf(referrer),
		"referrals": items,
		"ref_code":  user.RefCode,
	}))
}
