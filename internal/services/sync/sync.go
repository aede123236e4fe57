// Package sync содержит логику внутренней границы синхронизации: частичный
// upsert учетных записей, чтение состояния, обновление учетных данных и
// условное списание баланса. Доступ к этим операциям ограничивается общим
// секретом на уровне middleware, а не пользовательскими токенами.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/identity-service/internal/events"
	"github.com/magabrotheeeer/identity-service/internal/lib/sl"
	"github.com/magabrotheeeer/identity-service/internal/models"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

// ErrInvalidAmount неположительная сумма списания.
var ErrInvalidAmount = errors.New("amount must be positive")

// Статусы результата условного списания.
const (
	DebitOK                = "ok"
	DebitInsufficientFunds = "insufficient_funds"
	DebitNotFound          = "not_found"
)

const stateCacheTTL = time.Minute

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	UpsertUser(ctx context.Context, p repository.UpsertUserParams) (bool, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetOpenRouterSettings(ctx context.Context, id int64, apiKey, apiHash, model *string) error
	DebitBalance(ctx context.Context, id, amount int64) (int64, error)
}

// StateCache описывает кэш состояния пользователя для читающих вызовов.
type StateCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher описывает публикацию событий учетных записей.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// State состояние пользователя, видимое другим внутренним сервисам.
type State struct {
	UserID         int64   `json:"user_id"`
	BalanceKopecks int64   `json:"balance_kopecks"`
	ApiKey         *string `json:"api_key"`
	ApiHash        *string `json:"api_hash"`
	Model          *string `json:"model"`
}

// DebitResult результат условного списания.
type DebitResult struct {
	Status         string `json:"status"`
	BalanceKopecks *int64 `json:"balance_kopecks"`
}

// Service реализует операции внутренней границы синхронизации.
type Service struct {
	users  UserRepository
	cache  StateCache
	events EventPublisher
	log    *slog.Logger
}

// New создает новый экземпляр Service. Кэш опционален.
func New(users UserRepository, cache StateCache, publisher EventPublisher, log *slog.Logger) *Service {
	return &Service{
		users:  users,
		cache:  cache,
		events: publisher,
		log:    log,
	}
}

func stateCacheKey(userID int64) string {
	return fmt.Sprintf("sync:user_state:%d", userID)
}

func stateOf(u *models.User) *State {
	return &State{
		UserID:         u.ID,
		BalanceKopecks: u.Balance,
		ApiKey:         u.ORApiKey,
		ApiHash:        u.ORApiHash,
		Model:          u.ORModel,
	}
}

func (s *Service) invalidateState(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, stateCacheKey(userID)); err != nil {
		s.log.Warn("failed to invalidate user state cache", sl.Err(err))
	}
}

// UpsertUser создает или частично обновляет пользователя. Каноничное
// правило частичного обновления одно: отсутствующие и null-поля входа
// не затирают существующие значения, роль разрешена.
// Возвращает "created" либо "updated".
func (s *Service) UpsertUser(ctx context.Context, p repository.UpsertUserParams) (string, error) {
	created, err := s.users.UpsertUser(ctx, p)
	if err != nil {
		return "", err
	}
	s.invalidateState(ctx, p.ID)

	status := "updated"
	if created {
		status = "created"
		refCode := ""
		if p.RefCode != nil {
			refCode = *p.RefCode
		}
		if err = s.events.Publish(events.RoutingKeyAccountCreated, events.AccountCreated{
			EventID:   events.NewEventID(),
			UserID:    p.ID,
			RefCode:   refCode,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			s.log.Warn("failed to publish account.created", sl.Err(err))
		}
	}
	return status, nil
}

// UserState возвращает баланс и учетные данные пользователя. Чтение
// кэшируется, кэш сбрасывается каждой мутацией через эту границу.
func (s *Service) UserState(ctx context.Context, userID int64) (*State, error) {
	key := stateCacheKey(userID)
	if s.cache != nil {
		var cached State
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read user state cache", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := stateOf(user)

	if s.cache != nil {
		if err = s.cache.Set(ctx, key, state, stateCacheTTL); err != nil {
			s.log.Warn("failed to cache user state", sl.Err(err))
		}
	}
	return state, nil
}

// SetOpenRouterSettings обновляет учетные данные OpenRouter и возвращает
// свежее состояние пользователя.
func (s *Service) SetOpenRouterSettings(ctx context.Context, userID int64, apiKey, apiHash, model *string) (*State, error) {
	if err := s.users.SetOpenRouterSettings(ctx, userID, apiKey, apiHash, model); err != nil {
		return nil, err
	}
	s.invalidateState(ctx, userID)

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return stateOf(user), nil
}

// DebitBalance условно списывает сумму с баланса. Списание атомарно:
// при конкурентных вызовах пройдет не больше, чем позволяет баланс.
func (s *Service) DebitBalance(ctx context.Context, userID, amount int64) (*DebitResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	balance, err := s.users.DebitBalance(ctx, userID, amount)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return &DebitResult{Status: DebitNotFound}, nil
	case errors.Is(err, repository.ErrInsufficientFunds):
		return &DebitResult{Status: DebitInsufficientFunds, BalanceKopecks: &balance}, nil
	case err != nil:
		return nil, err
	}

	s.invalidateState(ctx, userID)
	if err = s.events.Publish(events.RoutingKeyBalanceDebited, events.BalanceDebited{
		EventID:        events.NewEventID(),
		UserID:         userID,
		AmountKopecks:  amount,
		BalanceKopecks: balance,
		OccurredAt:     time.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to publish balance.debited", sl.Err(err))
	}
	return &DebitResult{Status: DebitOK, BalanceKopecks: &balance}, nil
}
