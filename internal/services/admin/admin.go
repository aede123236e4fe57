// Package admin содержит логику административных операций: имперсонизация,
// продление лицензии и пополнение баланса по username.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/models"
)

var (
	// ErrSelfImpersonation админ пытается имперсонировать сам себя
	ErrSelfImpersonation = errors.New("cannot impersonate yourself")
	// ErrInvalidAmount неположительная сумма пополнения
	ErrInvalidAmount = errors.New("amount must be positive")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ExtendLicense(ctx context.Context, id int64, days int) (time.Time, error)
	AddBalance(ctx context.Context, id, kopecks int64) (int64, error)
}

// Service реализует административные операции. Вызывающая сторона обязана
// заранее разрешить реальную личность и убедиться в роли администратора.
type Service struct {
	users  UserRepository
	tokens jwtlib.Maker
}

// New создает новый экземпляр Service.
func New(users UserRepository, tokens jwtlib.Maker) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
	}
}

// NormalizeUsername убирает префиксы ссылки на профиль и @.
func NormalizeUsername(username string) string {
	username = strings.TrimPrefix(username, "https://t.me/")
	return strings.TrimPrefix(username, "@")
}

// Impersonate выпускает делегированную пару токенов: субъект — целевой
// пользователь, реальный субъект — админ. Имперсонизация самого себя
// запрещена.
func (s *Service) Impersonate(ctx context.Context, adminID int64, username string) (access, refresh string, err error) {
	const op = "services.admin.Impersonate"

	target, err := s.users.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return "", "", err
	}
	if target.ID == adminID {
		return "", "", ErrSelfImpersonation
	}

	access, refresh, err = s.tokens.NewImpersonationPair(target.ID, adminID)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return access, refresh, nil
}

// StopImpersonate выпускает обычную пару токенов для самого админа,
// возвращая его к собственной личности.
func (s *Service) StopImpersonate(_ context.Context, adminID int64) (access, refresh string, err error) {
	const op = "services.admin.StopImpersonate"

	access, err = s.tokens.NewAccessToken(adminID, nil)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	refresh, err = s.tokens.NewRefreshToken(adminID, nil)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return access, refresh, nil
}

// ExtendLicense продлевает лицензию пользователя на days дней и возвращает
// новую дату окончания.
func (s *Service) ExtendLicense(ctx context.Context, username string, days int) (time.Time, error) {
	target, err := s.users.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return time.Time{}, err
	}
	return s.users.ExtendLicense(ctx, target.ID, days)
}

// AddBalance пополняет баланс пользователя на сумму в рублях и возвращает
// новый баланс в копейках.
func (s *Service) AddBalance(ctx context.Context, username string, rubles int64) (int64, error) {
	if rubles <= 0 {
		return 0, ErrInvalidAmount
	}
	target, err := s.users.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		return 0, err
	}
	return s.users.AddBalance(ctx, target.ID, rubles*100)
}
