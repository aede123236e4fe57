package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/lib/refcode"
	"github.com/magabrotheeeer/identity-service/internal/lib/telegram"
	"github.com/magabrotheeeer/identity-service/internal/models"
	"github.com/magabrotheeeer/identity-service/internal/storage/repository"
)

const testBotToken = "123456:test-bot-token"

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) GetUserByRefCode(ctx context.Context, refCode string) (*models.User, error) {
	args := m.Called(ctx, refCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) CreateUser(ctx context.Context, user models.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *RepoMock) UpdateProfile(ctx context.Context, id int64, username, firstName, lastName, photoURL *string) error {
	return m.Called(ctx, id, username, firstName, lastName, photoURL).Error(0)
}
func (m *RepoMock) SetRefCodeIfAbsent(ctx context.Context, id int64, code string) (bool, error) {
	args := m.Called(ctx, id, code)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) SetReferrerIfAbsent(ctx context.Context, id, referrerID int64) (bool, error) {
	args := m.Called(ctx, id, referrerID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) SetOpenRouterSettings(ctx context.Context, id int64, apiKey, apiHash, model *string) error {
	return m.Called(ctx, id, apiKey, apiHash, model).Error(0)
}
func (m *RepoMock) ListReferrals(ctx context.Context, id int64) ([]*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}
func (m *RepoMock) RefCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(routingKey string, message any) error {
	return m.Called(routingKey, message).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newService(repo *RepoMock, publisher *PublisherMock) (*AuthService, jwtlib.Maker) {
	maker := jwtlib.NewMaker("test_secret", 15*time.Minute, 30)
	return NewAuthService(repo, maker, telegram.NewVerifier(testBotToken),
		refcode.NewAllocator(repo), publisher, newNoopLogger()), maker
}

// signedLoginData собирает данные виджета с корректной подписью.
func signedLoginData(id int64, username string) telegram.LoginData {
	data := telegram.LoginData{
		ID:        id,
		FirstName: "Ivan",
		Username:  username,
		AuthDate:  time.Now().Unix(),
	}

	fields := map[string]string{
		"id":         strconv.FormatInt(data.ID, 10),
		"auth_date":  strconv.FormatInt(data.AuthDate, 10),
		"first_name": data.FirstName,
		"username":   data.Username,
	}
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	key := sha256.Sum256([]byte(testBotToken))
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(strings.Join(pairs, "\n")))
	data.Hash = hex.EncodeToString(mac.Sum(nil))
	return data
}

func strPtr(s string) *string { return &s }

func TestAuthService_Login_NewUser(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(nil, repository.ErrUserNotFound).Once()
	repo.On("RefCodeExists", mock.Anything, mock.AnythingOfType("string")).
		Return(false, nil).Once()
	repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.ID == 42 && u.Role == models.RoleUser &&
			u.RefCode != nil && len(*u.RefCode) == refcode.Length &&
			u.ReferredByID == nil
	})).Return(nil).Once()
	publisher.On("Publish", "account.created", mock.Anything).Return(nil).Once()

	pair, err := svc.Login(context.Background(), signedLoginData(42, "ivan"), "")
	require.NoError(t, err)

	claims, err := maker.Parse(pair.AccessToken)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.False(t, claims.IsDelegated())

	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestAuthService_Login_NewUserWithInvite(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	inviter := &models.User{ID: 7, RefCode: strPtr("INVITE01")}
	repo.On("GetUserByRefCode", mock.Anything, "INVITE01").Return(inviter, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(nil, repository.ErrUserNotFound).Once()
	repo.On("RefCodeExists", mock.Anything, mock.AnythingOfType("string")).
		Return(false, nil).Once()
	repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.ReferredByID != nil && *u.ReferredByID == 7
	})).Return(nil).Once()
	publisher.On("Publish", "account.created", mock.Anything).Return(nil).Once()

	_, err := svc.Login(context.Background(), signedLoginData(42, "ivan"), "INVITE01")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_Login_ExistingUserResync(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	existing := &models.User{
		ID:           42,
		RefCode:      strPtr("OLDCODE1"),
		ReferredByID: nil,
	}
	repo.On("GetUserByID", mock.Anything, int64(42)).Return(existing, nil).Once()
	repo.On("UpdateProfile", mock.Anything, int64(42),
		strPtr("ivan"), strPtr("Ivan"), (*string)(nil), (*string)(nil)).Return(nil).Once()

	_, err := svc.Login(context.Background(), signedLoginData(42, "ivan"), "")
	require.NoError(t, err)

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "SetRefCodeIfAbsent", mock.Anything, mock.Anything, mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestAuthService_Login_BackfillRefCodeAndReferrer(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	inviter := &models.User{ID: 7}
	existing := &models.User{ID: 42} // без кода и пригласившего, без лицензии

	repo.On("GetUserByRefCode", mock.Anything, "INVITE01").Return(inviter, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(42)).Return(existing, nil).Once()
	repo.On("UpdateProfile", mock.Anything, int64(42),
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("RefCodeExists", mock.Anything, mock.AnythingOfType("string")).
		Return(false, nil).Once()
	repo.On("SetRefCodeIfAbsent", mock.Anything, int64(42), mock.AnythingOfType("string")).
		Return(true, nil).Once()
	repo.On("SetReferrerIfAbsent", mock.Anything, int64(42), int64(7)).
		Return(true, nil).Once()

	_, err := svc.Login(context.Background(), signedLoginData(42, "ivan"), "INVITE01")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_Login_NoReferrerBackfillWithActiveLicense(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	licenseEnd := time.Now().Add(24 * time.Hour)
	inviter := &models.User{ID: 7}
	existing := &models.User{
		ID:             42,
		RefCode:        strPtr("OLDCODE1"),
		LicenseEndDate: &licenseEnd,
	}

	repo.On("GetUserByRefCode", mock.Anything, "INVITE01").Return(inviter, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(42)).Return(existing, nil).Once()
	repo.On("UpdateProfile", mock.Anything, int64(42),
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Login(context.Background(), signedLoginData(42, "ivan"), "INVITE01")
	require.NoError(t, err)

	repo.AssertNotCalled(t, "SetReferrerIfAbsent", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_Login_BadSignature(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	data := signedLoginData(42, "ivan")
	data.FirstName = "Eve"

	_, err := svc.Login(context.Background(), data, "")
	assert.ErrorIs(t, err, telegram.ErrSignatureMismatch)
	repo.AssertNotCalled(t, "GetUserByID", mock.Anything, mock.Anything)
}

func TestAuthService_Refresh_Plain(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	refreshToken, err := maker.NewRefreshToken(42, nil)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(&models.User{ID: 42}, nil).Once()

	pair, err := svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)

	claims, err := maker.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.False(t, claims.IsDelegated())
}

func TestAuthService_Refresh_DelegatedKeepsDelegation(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	_, refreshToken, err := maker.NewImpersonationPair(42, 7)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(&models.User{ID: 42}, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(7)).
		Return(&models.User{ID: 7, Role: models.RoleAdmin}, nil).Once()

	pair, err := svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)

	claims, err := maker.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsDelegated())
	realID, err := claims.RealUserID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), realID)
}

func TestAuthService_Refresh_DelegatedAdminDemoted(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	_, refreshToken, err := maker.NewImpersonationPair(42, 7)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(&models.User{ID: 42}, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(7)).
		Return(&models.User{ID: 7, Role: models.RoleUser}, nil).Once()

	_, err = svc.Refresh(context.Background(), refreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	_, err := svc.Refresh(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_Refresh_UserGone(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	refreshToken, err := maker.NewRefreshToken(42, nil)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(nil, repository.ErrUserNotFound).Once()

	_, err = svc.Refresh(context.Background(), refreshToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_Refresh_StorageError(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	refreshToken, err := maker.NewRefreshToken(42, nil)
	require.NoError(t, err)

	// Сбой хранилища — не отказ сессии: клиент не должен выбрасывать токены
	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(nil, errors.New("pq: connection refused")).Once()

	_, err = svc.Refresh(context.Background(), refreshToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_Refresh_DelegatedAdminLookupError(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	_, refreshToken, err := maker.NewImpersonationPair(42, 7)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(&models.User{ID: 42}, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(7)).
		Return(nil, errors.New("pq: connection refused")).Once()

	_, err = svc.Refresh(context.Background(), refreshToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthService_Identity(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, maker := newService(repo, publisher)

	access, _, err := maker.NewImpersonationPair(42, 7)
	require.NoError(t, err)

	repo.On("GetUserByID", mock.Anything, int64(42)).
		Return(&models.User{ID: 42}, nil).Once()
	repo.On("GetUserByID", mock.Anything, int64(7)).
		Return(&models.User{ID: 7, Role: models.RoleAdmin}, nil).Once()

	user, claims, err := svc.Identity(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.True(t, claims.IsDelegated())

	realUser, _, err := svc.RealIdentity(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, int64(7), realUser.ID)
}

func TestAuthService_Identity_Expired(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	expiredMaker := jwtlib.NewMaker("test_secret", -time.Minute, 30)
	token, err := expiredMaker.NewAccessToken(42, nil)
	require.NoError(t, err)

	_, _, err = svc.Identity(context.Background(), token)
	assert.ErrorIs(t, err, jwtlib.ErrTokenExpired)
}

func TestAuthService_Partners(t *testing.T) {
	repo := new(RepoMock)
	publisher := new(PublisherMock)
	svc, _ := newService(repo, publisher)

	referrerID := int64(7)
	user := &models.User{ID: 42, ReferredByID: &referrerID}

	repo.On("GetUserByID", mock.Anything, int64(7)).
		Return(&models.User{ID: 7}, nil).Once()
	repo.On("ListReferrals", mock.Anything, int64(42)).
		Return([]*models.User{{ID: 100}, {ID: 101}}, nil).Once()

	referrer, referrals, err := svc.Partners(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, referrer)
	assert.Equal(t, int64(7), referrer.ID)
	assert.Len(t, referrals, 2)
}
