package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/identity-service/internal/models"
)

func strPtr(v string) *string        { return &v }
func intPtr(v int) *int              { return &v }
func int64Ptr(v int64) *int64        { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestGetUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUserWithRefCode(t, 42, "ivan", "AB12CD34")
	ctx := context.Background()

	t.Run("поиск по ID", func(t *testing.T) {
		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), user.ID)
		assert.Equal(t, "ivan", *user.Username)
		assert.Equal(t, models.RoleUser, user.Role)
		assert.Nil(t, user.LicenseEndDate)
		assert.Nil(t, user.ReferredByID)
	})

	t.Run("поиск по username", func(t *testing.T) {
		user, err := storage.GetUserByUsername(ctx, "ivan")
		require.NoError(t, err)
		assert.Equal(t, int64(42), user.ID)
	})

	t.Run("поиск по реферальному коду", func(t *testing.T) {
		user, err := storage.GetUserByRefCode(ctx, "AB12CD34")
		require.NoError(t, err)
		assert.Equal(t, int64(42), user.ID)
	})

	t.Run("несуществующий ID", func(t *testing.T) {
		_, err := storage.GetUserByID(ctx, 999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("несуществующий username", func(t *testing.T) {
		_, err := storage.GetUserByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("несуществующий код", func(t *testing.T) {
		_, err := storage.GetUserByRefCode(ctx, "ZZZZZZZZ")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestCreateUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("создание с рефералом", func(t *testing.T) {
		factory.CreateUserWithRefCode(t, 7, "referrer", "REF00001")

		err := storage.CreateUser(ctx, models.User{
			ID:           42,
			Username:     strPtr("ivan"),
			FirstName:    strPtr("Ivan"),
			RefCode:      strPtr("NEW00001"),
			ReferredByID: int64Ptr(7),
		})
		require.NoError(t, err)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "Ivan", *user.FirstName)
		assert.Equal(t, "NEW00001", *user.RefCode)
		assert.Equal(t, int64(7), *user.ReferredByID)
		assert.Equal(t, int64(0), user.Balance)
	})

	t.Run("занятый реферальный код", func(t *testing.T) {
		err := storage.CreateUser(ctx, models.User{
			ID:       43,
			Username: strPtr("petr"),
			RefCode:  strPtr("NEW00001"),
		})
		assert.ErrorIs(t, err, ErrRefCodeTaken)
	})

	t.Run("занятость кода", func(t *testing.T) {
		exists, err := storage.RefCodeExists(ctx, "NEW00001")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = storage.RefCodeExists(ctx, "FREE0001")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestUpdateProfile(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 42, "old_name", models.RoleUser)
	ctx := context.Background()

	err := storage.UpdateProfile(ctx, 42, strPtr("new_name"), strPtr("Ivan"), nil, strPtr("https://t.me/p.jpg"))
	require.NoError(t, err)

	user, err := storage.GetUserByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "new_name", *user.Username)
	assert.Equal(t, "Ivan", *user.FirstName)
	assert.Nil(t, user.LastName)
	assert.Equal(t, "https://t.me/p.jpg", *user.PhotoURL)
}

func TestSetRefCodeIfAbsent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 42, "ivan", models.RoleUser)
	ctx := context.Background()

	t.Run("первое присвоение", func(t *testing.T) {
		set, err := storage.SetRefCodeIfAbsent(ctx, 42, "AB12CD34")
		require.NoError(t, err)
		assert.True(t, set)
	})

	t.Run("повторное присвоение не меняет код", func(t *testing.T) {
		set, err := storage.SetRefCodeIfAbsent(ctx, 42, "XX99YY88")
		require.NoError(t, err)
		assert.False(t, set)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "AB12CD34", *user.RefCode)
	})

	t.Run("занятый код", func(t *testing.T) {
		factory.CreateUser(t, 43, "petr", models.RoleUser)

		_, err := storage.SetRefCodeIfAbsent(ctx, 43, "AB12CD34")
		assert.ErrorIs(t, err, ErrRefCodeTaken)
	})
}

func TestSetReferrerIfAbsent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 7, "referrer", models.RoleUser)
	factory.CreateUser(t, 42, "ivan", models.RoleUser)
	ctx := context.Background()

	t.Run("первое присвоение", func(t *testing.T) {
		set, err := storage.SetReferrerIfAbsent(ctx, 42, 7)
		require.NoError(t, err)
		assert.True(t, set)
	})

	t.Run("пригласивший неизменяем", func(t *testing.T) {
		factory.CreateUser(t, 8, "other", models.RoleUser)

		set, err := storage.SetReferrerIfAbsent(ctx, 42, 8)
		require.NoError(t, err)
		assert.False(t, set)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(7), *user.ReferredByID)
	})

	t.Run("нельзя пригласить самого себя", func(t *testing.T) {
		set, err := storage.SetReferrerIfAbsent(ctx, 7, 7)
		require.NoError(t, err)
		assert.False(t, set)
	})
}

func TestUpsertUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("создание новой строки", func(t *testing.T) {
		created, err := storage.UpsertUser(ctx, UpsertUserParams{
			ID:       42,
			Username: strPtr("ivan"),
			Role:     intPtr(int(models.RoleAdmin)),
			Balance:  int64Ptr(1000),
		})
		require.NoError(t, err)
		assert.True(t, created)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, user.Role)
		assert.Equal(t, int64(1000), user.Balance)
	})

	t.Run("частичное обновление не затирает nil-поля", func(t *testing.T) {
		endDate := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

		created, err := storage.UpsertUser(ctx, UpsertUserParams{
			ID:             42,
			LicenseEndDate: timePtr(endDate),
		})
		require.NoError(t, err)
		assert.False(t, created)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "ivan", *user.Username)
		assert.Equal(t, models.RoleAdmin, user.Role)
		assert.Equal(t, int64(1000), user.Balance)
		require.NotNil(t, user.LicenseEndDate)
		assert.WithinDuration(t, endDate, *user.LicenseEndDate, time.Second)
	})

	t.Run("вставка с nil-ролью и nil-балансом", func(t *testing.T) {
		created, err := storage.UpsertUser(ctx, UpsertUserParams{ID: 43})
		require.NoError(t, err)
		assert.True(t, created)

		user, err := storage.GetUserByID(ctx, 43)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, user.Role)
		assert.Equal(t, int64(0), user.Balance)
	})
}

func TestSetOpenRouterSettings(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 42, "ivan", models.RoleUser)
	ctx := context.Background()

	t.Run("полное обновление", func(t *testing.T) {
		err := storage.SetOpenRouterSettings(ctx, 42, strPtr("key"), strPtr("hash"), strPtr("deepseek/deepseek-chat"))
		require.NoError(t, err)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "key", *user.ORApiKey)
		assert.Equal(t, "hash", *user.ORApiHash)
		assert.Equal(t, "deepseek/deepseek-chat", *user.ORModel)
	})

	t.Run("nil-поля сохраняют прежние значения", func(t *testing.T) {
		err := storage.SetOpenRouterSettings(ctx, 42, nil, nil, strPtr("openai/gpt-4o"))
		require.NoError(t, err)

		user, err := storage.GetUserByID(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "key", *user.ORApiKey)
		assert.Equal(t, "openai/gpt-4o", *user.ORModel)
	})

	t.Run("несуществующий пользователь", func(t *testing.T) {
		err := storage.SetOpenRouterSettings(ctx, 999, strPtr("key"), nil, nil)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestExtendLicense(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	t.Run("лицензии не было", func(t *testing.T) {
		factory.CreateUser(t, 42, "ivan", models.RoleUser)

		endDate, err := storage.ExtendLicense(ctx, 42, 30)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), endDate, time.Minute)
	})

	t.Run("лицензия истекла", func(t *testing.T) {
		factory.CreateUser(t, 43, "petr", models.RoleUser)
		factory.SetLicenseEndDate(t, 43, time.Now().Add(-10*24*time.Hour))

		endDate, err := storage.ExtendLicense(ctx, 43, 7)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), endDate, time.Minute)
	})

	t.Run("активная лицензия продлевается от конца", func(t *testing.T) {
		factory.CreateUser(t, 44, "anna", models.RoleUser)
		current := time.Now().Add(10 * 24 * time.Hour)
		factory.SetLicenseEndDate(t, 44, current)

		endDate, err := storage.ExtendLicense(ctx, 44, 5)
		require.NoError(t, err)
		assert.WithinDuration(t, current.Add(5*24*time.Hour), endDate, time.Minute)
	})

	t.Run("несуществующий пользователь", func(t *testing.T) {
		_, err := storage.ExtendLicense(ctx, 999, 30)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestBalance(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUserWithBalance(t, 42, "ivan", 1000)
	ctx := context.Background()

	t.Run("пополнение", func(t *testing.T) {
		balance, err := storage.AddBalance(ctx, 42, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(1500), balance)
	})

	t.Run("пополнение несуществующего", func(t *testing.T) {
		_, err := storage.AddBalance(ctx, 999, 500)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("успешное списание", func(t *testing.T) {
		balance, err := storage.DebitBalance(ctx, 42, 300)
		require.NoError(t, err)
		assert.Equal(t, int64(1200), balance)
	})

	t.Run("списание всего баланса", func(t *testing.T) {
		balance, err := storage.DebitBalance(ctx, 42, 1200)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("недостаточно средств", func(t *testing.T) {
		balance, err := storage.DebitBalance(ctx, 42, 1)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, int64(0), balance)

		// баланс не изменился
		user, getErr := storage.GetUserByID(ctx, 42)
		require.NoError(t, getErr)
		assert.Equal(t, int64(0), user.Balance)
	})

	t.Run("списание у несуществующего", func(t *testing.T) {
		_, err := storage.DebitBalance(ctx, 999, 100)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("конкурентные списания не уводят баланс в минус", func(t *testing.T) {
		factory.CreateUserWithBalance(t, 50, "boris", 100)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = storage.DebitBalance(ctx, 50, 60)
			}()
		}
		wg.Wait()

		var succeeded, refused int
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientFunds):
				refused++
			default:
				t.Fatalf("unexpected debit error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, refused)

		user, err := storage.GetUserByID(ctx, 50)
		require.NoError(t, err)
		assert.Equal(t, int64(40), user.Balance)
	})
}

func TestSetRefCodeIfAbsent_ConcurrentClaim(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 42, "ivan", models.RoleUser)
	factory.CreateUser(t, 43, "petr", models.RoleUser)
	ctx := context.Background()

	// Оба пользователя претендуют на один код: уникальный индекс должен
	// отдать его ровно одному, проигравший получает ErrRefCodeTaken
	ids := []int64{42, 43}
	var wg sync.WaitGroup
	claimed := make([]bool, len(ids))
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed[i], errs[i] = storage.SetRefCodeIfAbsent(ctx, id, "SAME0001")
		}()
	}
	wg.Wait()

	var winners, losers int
	for i := range ids {
		switch {
		case errs[i] == nil && claimed[i]:
			winners++
		case errors.Is(errs[i], ErrRefCodeTaken):
			losers++
		default:
			t.Fatalf("unexpected claim outcome: claimed=%v err=%v", claimed[i], errs[i])
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	owner, err := storage.GetUserByRefCode(ctx, "SAME0001")
	require.NoError(t, err)
	assert.Contains(t, ids, owner.ID)
}

func TestListReferrals(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	factory.CreateUserWithRefCode(t, 7, "referrer", "REF00001")
	factory.CreateUser(t, 42, "ivan", models.RoleUser)
	factory.CreateUser(t, 43, "petr", models.RoleUser)
	factory.CreateUser(t, 44, "anna", models.RoleUser)
	ctx := context.Background()

	for _, id := range []int64{42, 43} {
		set, err := storage.SetReferrerIfAbsent(ctx, id, 7)
		require.NoError(t, err)
		require.True(t, set)
	}

	t.Run("возвращает приглашенных по порядку", func(t *testing.T) {
		referrals, err := storage.ListReferrals(ctx, 7)
		require.NoError(t, err)
		require.Len(t, referrals, 2)
		assert.Equal(t, int64(42), referrals[0].ID)
		assert.Equal(t, int64(43), referrals[1].ID)
	})

	t.Run("без приглашенных пустой список", func(t *testing.T) {
		referrals, err := storage.ListReferrals(ctx, 44)
		require.NoError(t, err)
		assert.Empty(t, referrals)
	})
}
