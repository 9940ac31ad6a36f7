package cognito

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExchanger_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "https://api.roompe.in/auth/callback", r.PostForm.Get("redirect_uri"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"id.jwt.value","access_token":"a","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	ex := NewTokenExchanger(ExchangerConfig{Domain: server.URL + "/", ClientID: "client", ClientSecret: "secret"})
	idToken, err := ex.ExchangeCode(context.Background(), "the-code", "https://api.roompe.in/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "id.jwt.value", idToken)
}

func TestTokenExchanger_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rejected code", http.StatusBadRequest, `{"error":"invalid_grant"}`},
		{"missing id token", http.StatusOK, `{"access_token":"a"}`},
		{"malformed body", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			ex := NewTokenExchanger(ExchangerConfig{Domain: server.URL, ClientID: "client"})
			_, err := ex.ExchangeCode(context.Background(), "code", "http://localhost/cb")
			assert.Error(t, err)
		})
	}
}

func TestTokenExchanger_NotConfigured(t *testing.T) {
	_, err := NewTokenExchanger(ExchangerConfig{}).ExchangeCode(context.Background(), "c", "r")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
