// Package jwt реализует генерацию и парсинг JWT токенов сессии с
// пользовательскими claim полями.
//
// Claims расширяет стандартные claims JWT полями делегирования: real_sub и
// impersonated. Субъекты хранятся в токене строками.
package jwt

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired срок действия токена истек
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid любая другая проблема токена: подпись, формат, алгоритм
	ErrTokenInvalid = errors.New("invalid token")
)

// Delegation маркер имперсонизации: админ RealUserID действует от имени
// субъекта токена.
type Delegation struct {
	RealUserID int64
}

// Claims описывает данные, хранящиеся в токене сессии. Access и refresh
// токены структурно одинаковы и различаются только временем жизни.
type Claims struct {
	RealSub              string `json:"real_sub,omitempty"` // Реальный субъект при имперсонизации
	Impersonated         bool   `json:"impersonated,omitempty"`
	jwt.RegisteredClaims        // Subject, ExpiresAt и пр.
}

// UserID возвращает субъект токена числом.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// IsDelegated сообщает, что токен выписан в режиме имперсонизации.
func (c *Claims) IsDelegated() bool {
	return c.Impersonated && c.RealSub != ""
}

// RealUserID возвращает реального субъекта делегированного токена числом.
// Для обычного токена возвращает субъект.
func (c *Claims) RealUserID() (int64, error) {
	if !c.IsDelegated() {
		return c.UserID()
	}
	id, err := strconv.ParseInt(c.RealSub, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}
