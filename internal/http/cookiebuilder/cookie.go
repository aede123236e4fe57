// Package cookiebuilder собирает refresh-куку с одинаковыми атрибутами во
// всех обработчиках: http-only, secure при https, samesite none для secure
// и lax для локальной разработки, путь /, опциональный домен и max-age,
// равный времени жизни refresh-токена.
package cookiebuilder

import (
	"net/http"

	"github.com/magabrotheeeer/identity-service/internal/config"
)

// Name имя refresh-куки.
const Name = "refresh_token"

// Builder формирует refresh-куку по настройкам приложения.
type Builder struct {
	domain string
	secure bool
	maxAge int
}

// New создает Builder из конфигурации.
func New(auth config.Auth, refreshDays int) *Builder {
	return &Builder{
		domain: auth.CookieDomain,
		secure: auth.SecureCookies(),
		maxAge: refreshDays * 24 * 60 * 60,
	}
}

func (b *Builder) sameSite() http.SameSite {
	if b.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Refresh возвращает куку с refresh-токеном.
func (b *Builder) Refresh(token string) *http.Cookie {
	return &http.Cookie{
		Name:     Name,
		Value:    token,
		Path:     "/",
		Domain:   b.domain,
		MaxAge:   b.maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: b.sameSite(),
	}
}

// Clear возвращает куку, удаляющую refresh-токен.
func (b *Builder) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     Name,
		Value:    "",
		Path:     "/",
		Domain:   b.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: b.sameSite(),
	}
}
