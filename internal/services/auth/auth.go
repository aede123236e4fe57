// Package auth содержит логику бизнес-уровня для входа через телеграм,
// выпуска и ротации токенов сессии и разрешения личности по токену.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/identity-service/internal/events"
	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/lib/refcode"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/lib/telegram"
	"github.com/magabrotheeeer/identity-service/internal/models"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// ErrUnauthenticated вход по refresh-токену невозможен: токен отсутствует,
// невалиден, субъект пропал или реальный субъект делегированного токена
// больше не администратор.
var ErrUnauthenticated = errors.New("unauthenticated")

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByRefCode(ctx context.Context, refCode string) (*models.User, error)
	CreateUser(ctx context.Context, user models.User) error
	UpdateProfile(ctx context.Context, id int64, username, firstName, lastName, photoURL *string) error
	SetRefCodeIfAbsent(ctx context.Context, id int64, code string) (bool, error)
	SetReferrerIfAbsent(ctx context.Context, id, referrerID int64) (bool, error)
	SetOpenRouterSettings(ctx context.Context, id int64, apiKey, apiHash, model *string) error
	ListReferrals(ctx context.Context, id int64) ([]*models.User, error)
}

// EventPublisher описывает публикацию событий учетных записей.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// TokenPair пара токенов сессии. Access уходит в тело ответа, refresh —
// только в http-only куку.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService отвечает за вход, ротацию токенов и разрешение личности.
// Сервис не держит состояния между запросами: все решения выводятся из
// входящего токена и чтения хранилища.
type AuthService struct {
	users    UserRepository
	tokens   jwtlib.Maker
	verifier *telegram.Verifier
	refcodes *refcode.Allocator
	events   EventPublisher
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, tokens jwtlib.Maker, verifier *telegram.Verifier,
	refcodes *refcode.Allocator, publisher EventPublisher, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		verifier: verifier,
		refcodes: refcodes,
		events:   publisher,
		log:      log,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Login проверяет подпись виджета, создает или обновляет пользователя
// и выпускает пару токенов. У нового пользователя сразу выделяется
// реферальный код; у существующего код и пригласивший дозаполняются,
// если их еще нет.
func (s *AuthService) Login(ctx context.Context, data telegram.LoginData, inviteRefCode string) (*TokenPair, error) {
	const op = "services.auth.Login"

	if err := s.verifier.Verify(data, time.Now()); err != nil {
		return nil, err
	}

	var referrer *models.User
	if inviteRefCode != "" {
		ref, err := s.users.GetUserByRefCode(ctx, inviteRefCode)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ref != nil && ref.ID != data.ID {
			referrer = ref
		}
	}

	user, err := s.users.GetUserByID(ctx, data.ID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		if err = s.createUser(ctx, data, referrer); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		if err = s.resyncUser(ctx, user, data, referrer); err != nil {
			return nil, err
		}
	}

	return s.issuePlainPair(data.ID)
}

func (s *AuthService) createUser(ctx context.Context, data telegram.LoginData, referrer *models.User) error {
	const op = "services.auth.createUser"

	code, err := s.refcodes.Allocate(ctx)
	if err != nil {
		return err
	}
	user := models.User{
		ID:        data.ID,
		Username:  optional(data.Username),
		FirstName: optional(data.FirstName),
		LastName:  optional(data.LastName),
		PhotoURL:  optional(data.PhotoURL),
		Role:      models.RoleUser,
		RefCode:   &code,
	}
	if referrer != nil {
		user.ReferredByID = &referrer.ID
	}
	if err = s.users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = s.events.Publish(events.RoutingKeyAccountCreated, events.AccountCreated{
		EventID:   events.NewEventID(),
		UserID:    user.ID,
		RefCode:   code,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to publish account.created", sl.Err(err))
	}
	return nil
}

func (s *AuthService) resyncUser(ctx context.Context, user *models.User, data telegram.LoginData, referrer *models.User) error {
	const op = "services.auth.resyncUser"

	err := s.users.UpdateProfile(ctx, user.ID,
		optional(data.Username), optional(data.FirstName),
		optional(data.LastName), optional(data.PhotoURL))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.RefCode == nil {
		code, err := s.refcodes.Allocate(ctx)
		if err != nil {
			return err
		}
		if _, err = s.users.SetRefCodeIfAbsent(ctx, user.ID, code); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	// Пригласившего можно дозаполнить только пока у пользователя нет
	// ни пригласившего, ни активной лицензии.
	if user.ReferredByID == nil && referrer != nil &&
		!user.HasActiveLicense(time.Now()) && referrer.ID != user.ID {
		if _, err = s.users.SetReferrerIfAbsent(ctx, user.ID, referrer.ID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *AuthService) issuePlainPair(userID int64) (*TokenPair, error) {
	const op = "services.auth.issuePlainPair"

	access, err := s.tokens.NewAccessToken(userID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refresh, err := s.tokens.NewRefreshToken(userID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh проверяет refresh-токен и выпускает новую пару, ротируя
// refresh-токен. Для делегированного токена реальный субъект обязан
// по-прежнему существовать и быть администратором. Старый refresh-токен
// не отзывается: ротация без списка отзыва — принятый риск.
// ErrUnauthenticated означает отказ самой сессии; ошибка хранилища
// уходит наружу как есть, чтобы клиент не выбрасывал валидные токены.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "services.auth.Refresh"

	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !claims.IsDelegated() {
		return s.issuePlainPair(user.ID)
	}

	adminID, err := claims.RealUserID()
	if err != nil {
		return nil, ErrUnauthenticated
	}
	admin, err := s.users.GetUserByID(ctx, adminID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if admin.Role != models.RoleAdmin {
		return nil, ErrUnauthenticated
	}

	access, refresh, err := s.tokens.NewImpersonationPair(user.ID, admin.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Identity разрешает личность по access-токену: субъект токена.
// Возвращает claims для признаков имперсонизации.
func (s *AuthService) Identity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// RealIdentity разрешает реальную личность: для делегированного токена —
// реального субъекта, иначе — субъекта. Админские проверки всегда
// опираются на эту функцию, а не на действующую личность.
func (s *AuthService) RealIdentity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return nil, nil, err
	}
	userID, err := claims.RealUserID()
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Callback выпускает обычный refresh-токен для субъекта access-токена.
// Используется при переходе после входа, чтобы выставить куку на домене API.
func (s *AuthService) Callback(_ context.Context, accessToken string) (string, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil {
		return "", err
	}
	userID, err := claims.UserID()
	if err != nil {
		return "", err
	}
	return s.tokens.NewRefreshToken(userID, nil)
}

// UpdateSettings обновляет учетные данные OpenRouter пользователя.
// Nil-поля не затрагиваются. Возвращает свежее состояние пользователя.
func (s *AuthService) UpdateSettings(ctx context.Context, userID int64, apiKey, apiHash, model *string) (*models.User, error) {
	const op = "services.auth.UpdateSettings"

	if err := s.users.SetOpenRouterSettings(ctx, userID, apiKey, apiHash, model); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.users.GetUserByID(ctx, userID)
}

// Partners возвращает пригласившего пользователя и список приглашенных.
func (s *AuthService) Partners(ctx context.Context, user *models.User) (*models.User, []*models.User, error) {
	const op = "services.auth.Partners"

	var referrer *models.User
	if user.ReferredByID != nil {
		ref, err := s.users.GetUserByID(ctx, *user.ReferredByID)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		referrer = ref
	}

	referrals, err := s.users.ListReferrals(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return referrer, referrals, nil
}
