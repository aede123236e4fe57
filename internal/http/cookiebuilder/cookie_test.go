package cookiebuilder

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/identity-service/internal/config"
)

func TestBuilder_Refresh(t *testing.T) {
	tests := []struct {
		name         string
		auth         config.Auth
		wantSecure   bool
		wantSameSite http.SameSite
	}{
		{
			name:         "https public url gives secure none cookie",
			auth:         config.Auth{PublicURL: "https://id.example.com", CookieDomain: ".example.com"},
			wantSecure:   true,
			wantSameSite: http.SameSiteNoneMode,
		},
		{
			name:         "http public url gives lax cookie for local development",
			auth:         config.Auth{PublicURL: "http://localhost:8834"},
			wantSecure:   false,
			wantSameSite: http.SameSiteLaxMode,
		},
		{
			name:         "empty public url defaults to secure",
			auth:         config.Auth{},
			wantSecure:   true,
			wantSameSite: http.SameSiteNoneMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := New(tt.auth, 30).Refresh("token-value")

			assert.Equal(t, Name, cookie.Name)
			assert.Equal(t, "token-value", cookie.Value)
			assert.Equal(t, "/", cookie.Path)
			assert.Equal(t, tt.auth.CookieDomain, cookie.Domain)
			assert.Equal(t, 30*24*60*60, cookie.MaxAge)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, tt.wantSecure, cookie.Secure)
			assert.Equal(t, tt.wantSameSite, cookie.SameSite)
		})
	}
}

func TestBuilder_Clear(t *testing.T) {
	cookie := New(config.Auth{PublicURL: "https://id.example.com"}, 30).Clear()

	assert.Equal(t, Name, cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
}
