package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGmailClient(srvURL string) *GmailClient {
	return &GmailClient{
		ClientID:     "g-client",
		ClientSecret: "g-secret",
		RedirectURI:  "https://app.example.com/api/oauth/gmail/callback",
		AuthorizeURL: srvURL + "/o/oauth2/v2/auth",
		TokenURL:     srvURL + "/token",
		UserInfoURL:  srvURL + "/oauth2/v2/userinfo",
		HTTPClient:   http.DefaultClient,
	}
}

// Every connect must yield a refresh token, so the consent screen is forced.
func TestGmailAuthorizationURLOfflineAccess(t *testing.T) {
	c := newTestGmailClient("https://accounts.google.example")

	raw, err := c.AuthorizationURL("state-g")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "gmail.compose")
	assert.Equal(t, "state-g", q.Get("state"))
}

func TestGmailExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "g-client", r.PostForm.Get("client_id"))

		w.Write([]byte(`{"access_token": "g-at", "refresh_token": "g-rt", "expires_in": 3599}`))
	}))
	defer srv.Close()

	c := newTestGmailClient(srv.URL)
	tokens, err := c.ExchangeCode(context.Background(), "the-code", c.RedirectURI)
	require.NoError(t, err)
	assert.Equal(t, "g-at", tokens.AccessToken)
	assert.Equal(t, "g-rt", tokens.RefreshToken)
}

func TestGmailRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "g-rt", r.PostForm.Get("refresh_token"))

		// Google rarely rotates the refresh token on refresh
		w.Write([]byte(`{"access_token": "g-at-2", "expires_in": 3599}`))
	}))
	defer srv.Close()

	c := newTestGmailClient(srv.URL)
	tokens, err := c.RefreshToken(context.Background(), "g-rt")
	require.NoError(t, err)
	assert.Equal(t, "g-at-2", tokens.AccessToken)
	assert.Empty(t, tokens.RefreshToken)
}

func TestGmailFetchAccountNameFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-at", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id": "108", "email": "user@gmail.example"}`))
	}))
	defer srv.Close()

	c := newTestGmailClient(srv.URL)
	account, err := c.FetchAccount(context.Background(), "g-at")
	require.NoError(t, err)
	assert.Equal(t, "user@gmail.example", account.Email)
	assert.Equal(t, "user@gmail.example", account.Name)
}

func TestGmailFetchAccountUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestGmailClient(srv.URL)
	_, err := c.FetchAccount(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
