package middlewarectx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "valid token passes",
			secret:     "shared-secret",
			header:     "shared-secret",
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "missing token rejected",
			secret:     "shared-secret",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token rejected",
			secret:     "shared-secret",
			header:     "wrong",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unconfigured secret rejects everything",
			secret:     "",
			header:     "anything",
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/admin/create-user", nil)
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			w := httptest.NewRecorder()

			InternalToken(tt.secret, logger)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantNext, nextCalled)
		})
	}
}
