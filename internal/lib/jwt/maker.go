// Package jwt реализует генерацию и парсинг JWT токенов сессии.
//
// Maker определяет интерфейс для выпуска access и refresh токенов,
// в том числе делегированных пар для имперсонизации.
// MakerImpl — конкретная реализация с секретным ключом и двумя TTL.
package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Maker описывает интерфейс для генерации и парсинга токенов сессии.
type Maker interface {
	// NewAccessToken выпускает короткоживущий токен для субъекта,
	// опционально с маркером делегирования
	NewAccessToken(userID int64, d *Delegation) (string, error)
	// NewRefreshToken выпускает долгоживущий токен той же структуры
	NewRefreshToken(userID int64, d *Delegation) (string, error)
	// NewImpersonationPair выпускает пару access+refresh токенов,
	// субъект — target, реальный субъект — admin
	NewImpersonationPair(targetID, adminID int64) (access, refresh string, err error)
	// Parse проверяет подпись и срок, возвращает Claims.
	// Ошибки: ErrTokenExpired либо ErrTokenInvalid, без деталей
	Parse(tokenStr string) (*Claims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа,
// времени жизни access-токена и времени жизни refresh-токена в днях.
type MakerImpl struct {
	secretKey  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewMaker создаёт новый экземпляр MakerImpl.
func NewMaker(secretKey string, accessTTL time.Duration, refreshDays int) *MakerImpl {
	return &MakerImpl{
		secretKey:  secretKey,
		accessTTL:  accessTTL,
		refreshTTL: time.Duration(refreshDays) * 24 * time.Hour,
	}
}

func (m *MakerImpl) newToken(userID int64, d *Delegation, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	if d != nil {
		claims.RealSub = strconv.FormatInt(d.RealUserID, 10)
		claims.Impersonated = true
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// NewAccessToken выпускает access-токен с TTL из конфигурации.
func (m *MakerImpl) NewAccessToken(userID int64, d *Delegation) (string, error) {
	return m.newToken(userID, d, m.accessTTL)
}

// NewRefreshToken выпускает refresh-токен с TTL из конфигурации.
func (m *MakerImpl) NewRefreshToken(userID int64, d *Delegation) (string, error) {
	return m.newToken(userID, d, m.refreshTTL)
}

// NewImpersonationPair выпускает пару токенов для имперсонизации:
// субъект — target, real_sub — admin, impersonated=true в обоих.
func (m *MakerImpl) NewImpersonationPair(targetID, adminID int64) (string, string, error) {
	d := &Delegation{RealUserID: adminID}
	access, err := m.NewAccessToken(targetID, d)
	if err != nil {
		return "", "", err
	}
	refresh, err := m.NewRefreshToken(targetID, d)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Parse парсит токен, проверяет подпись, алгоритм и срок действия.
// Наружу уходит только разделение "истек"/"невалиден", чтобы не давать
// оракула по секрету подписи.
func (m *MakerImpl) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(m.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
