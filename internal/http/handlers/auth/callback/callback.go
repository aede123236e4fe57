// Package callback реализует обработчик обмена access-токена на сессию
// с редиректом обратно на фронтенд. Используется виджетом входа в режиме
// redirect: токен приходит в query-параметре, в ответ выставляется
// refresh-кука и выполняется 302 на разрешенный адрес возврата.
package callback

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/identity-service/internal/config"
	"github.com/magabrotheeeer/identity-service/internal/http/cookiebuilder"
	"github.com/magabrotheeeer/identity-service/internal/http/response"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
)

// Service описывает интерфейс обмена access-токена на refresh-токен.
type Service interface {
	Callback(ctx context.Context, accessToken string) (string, error)
}

// Handler обрабатывает HTTP-запросы коллбэка входа.
type Handler struct {
	log             *slog.Logger
	svc             Service
	cookies         *cookiebuilder.Builder
	defaultReturnTo string
	allowedHosts    map[string]struct{}
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service, cookies *cookiebuilder.Builder, auth config.Auth) *Handler {
	hosts := make(map[string]struct{}, len(auth.AllowedReturnHosts))
	for _, h := range auth.AllowedReturnHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Handler{
		log:             log,
		svc:             svc,
		cookies:         cookies,
		defaultReturnTo: auth.DefaultReturnTo,
		allowedHosts:    hosts,
	}
}

// returnTo возвращает адрес возврата из запроса, если его хост входит в
// список разрешенных, иначе адрес по умолчанию. Относительные пути без
// хоста разрешены всегда. Хост сравнивается вместе с портом: запись
// localhost:5173 в списке разрешает только этот порт.
func (h *Handler) returnTo(raw string) string {
	if raw == "" {
		return h.defaultReturnTo
	}
	u, err := url.Parse(raw)
	if err != nil {
		return h.defaultReturnTo
	}
	if u.Host == "" && strings.HasPrefix(u.Path, "/") {
		return raw
	}
	if _, ok := h.allowedHosts[strings.ToLower(u.Host)]; ok {
		return raw
	}
	return h.defaultReturnTo
}

// ServeHTTP godoc
// @Summary Коллбэк входа с редиректом
// @Description Проверяет access-токен из query-параметра, выставляет refresh-куку и перенаправляет на адрес возврата с access-токеном в параметре.
// @Tags auth
// @Param access_token query string true "Access-токен"
// @Param return_to query string false "Адрес возврата"
// @Success 302 "Редирект на фронтенд"
// @Failure 401 {object} response.ErrorResponse "Токен невалиден"
// @Router /auth/callback [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.callback"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accessToken := r.URL.Query().Get("access_token")
	if accessToken == "" {
		log.Error("no access token in query")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid token"))
		return
	}

	refreshToken, err := h.svc.Callback(r.Context(), accessToken)
	if err != nil {
		log.Error("callback rejected", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid token"))
		return
	}

	http.SetCookie(w, h.cookies.Refresh(refreshToken))

	dest := h.returnTo(r.URL.Query().Get("return_to"))
	sep := "?"
	if strings.Contains(dest, "?") {
		sep = "&"
	}
	http.Redirect(w, r, dest+sep+"access_token="+url.QueryEscape(accessToken), http.StatusFound)
}
