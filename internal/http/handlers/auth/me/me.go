// Package me реализует HTTP-обработчик чтения профиля текущей сессии.
// Пользователь и клеймы токена берутся из контекста запроса, куда их
// кладет middleware аутентификации.
package me

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
)

// Profile — представление профиля в ответе.
type Profile struct {
	ID             int64      `json:"id"`
	Username       *string    `json:"username"`
	FirstName      *string    `json:"first_name"`
	LastName       *string    `json:"last_name"`
	PhotoURL       *string    `json:"photo_url"`
	Role           string     `json:"role"`
	BalanceKopecks int64      `json:"balance_kopecks"`
	LicenseEndDate *time.Time `json:"license_end_date"`
	HasLicense     bool       `json:"has_license"`
	RefCode        *string    `json:"ref_code"`
	Impersonated   bool       `json:"impersonated,omitempty"`
	RealUserID     int64      `json:"real_user_id,omitempty"`
}

// Handler обрабатывает HTTP-запросы профиля.
type Handler struct {
	log *slog.Logger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Профиль текущей сессии
// @Description Возвращает профиль субъекта access-токена. Для делегированной сессии — профиль целевого пользователя с пометкой impersonated.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response "Профиль"
// @Failure 401 {object} response.ErrorResponse "Токен отсутствует или невалиден"
// @Router /auth/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	claims, _ := middlewarectx.ClaimsFromContext(r.Context())

	profile := Profile{
		ID:             user.ID,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		PhotoURL:       user.PhotoURL,
		Role:           user.Role.String(),
		BalanceKopecks: user.Balance,
		LicenseEndDate: user.LicenseEndDate,
		HasLicense:     user.HasActiveLicense(time.Now()),
		RefCode:        user.RefCode,
	}
	if claims != nil && claims.IsDelegated() {
		profile.Impersonated = true
		if realID, err := claims.RealUserID(); err == nil {
			profile.RealUserID = realID
		}
	}

	render.JSON(w, r, response.OKWithData(profile))
}
