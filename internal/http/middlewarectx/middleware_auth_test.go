package middlewarectx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	jwtlib "github.com/magabrotheeeer/identity-service/internal/lib/jwt"
	"github.com/magabrotheeeer/identity-service/internal/models"
)

type ResolverMock struct{ mock.Mock }

func (m *ResolverMock) Identity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.User), args.Get(1).(*jwtlib.Claims), args.Error(2)
}
func (m *ResolverMock) RealIdentity(ctx context.Context, accessToken string) (*models.User, *jwtlib.Claims, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.User), args.Get(1).(*jwtlib.Claims), args.Error(2)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		setupMock  func(m *ResolverMock)
		wantStatus int
		wantUserID int64
	}{
		{
			name:   "valid token puts user into context",
			header: "Bearer good-token",
			setupMock: func(m *ResolverMock) {
				m.On("Identity", mock.Anything, "good-token").
					Return(&models.User{ID: 42}, &jwtlib.Claims{}, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantUserID: 42,
		},
		{
			name:       "missing header",
			header:     "",
			setupMock:  func(_ *ResolverMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer scheme",
			header:     "Basic abc",
			setupMock:  func(_ *ResolverMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "expired token",
			header: "Bearer stale",
			setupMock: func(m *ResolverMock) {
				m.On("Identity", mock.Anything, "stale").
					Return(nil, nil, jwtlib.ErrTokenExpired).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "invalid token",
			header: "Bearer bad",
			setupMock: func(m *ResolverMock) {
				m.On("Identity", mock.Anything, "bad").
					Return(nil, nil, jwtlib.ErrTokenInvalid).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(ResolverMock)
			tt.setupMock(resolver)

			var gotUserID int64
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if user, ok := UserFromContext(r.Context()); ok {
					gotUserID = user.ID
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			Auth(resolver, noopLogger())(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUserID, gotUserID)
			resolver.AssertExpectations(t)
		})
	}
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		setupMock  func(m *ResolverMock)
		wantStatus int
	}{
		{
			name: "admin passes",
			setupMock: func(m *ResolverMock) {
				m.On("RealIdentity", mock.Anything, "token").
					Return(&models.User{ID: 7, Role: models.RoleAdmin}, &jwtlib.Claims{}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "regular user forbidden",
			setupMock: func(m *ResolverMock) {
				m.On("RealIdentity", mock.Anything, "token").
					Return(&models.User{ID: 42, Role: models.RoleUser}, &jwtlib.Claims{}, nil).Once()
			},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := new(ResolverMock)
			tt.setupMock(resolver)

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/admin/impersonate", nil)
			req.Header.Set("Authorization", "Bearer token")
			w := httptest.NewRecorder()

			AdminAuth(resolver, noopLogger())(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			resolver.AssertExpectations(t)
		})
	}
}
