package connect

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/security"
)

const testKey = "service-test-encryption-key"

type fakeProvider struct {
	name string

	exchangeTokens *Tokens
	exchangeErr    error
	account        *Account
	accountErr     error
	refreshTokens  *Tokens
	refreshErr     error

	refreshCalls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthorizationURL(state string) (string, error) {
	return "https://provider.example/authorize?state=" + state, nil
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.exchangeTokens, nil
}

func (p *fakeProvider) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	if p.accountErr != nil {
		return nil, p.accountErr
	}
	return p.account, nil
}

func (p *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshTokens, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newConnTestRepo(t *testing.T) repository.ConnectionRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OAuthConnection{}))
	return repository.NewConnectionRepository(db)
}

func seedConnection(t *testing.T, conns repository.ConnectionRepository, userID uint, provider, accessToken, refreshToken string) *models.OAuthConnection {
	t.Helper()
	accessEnc, err := security.Encrypt(accessToken, testKey)
	require.NoError(t, err)
	refreshEnc := ""
	if refreshToken != "" {
		refreshEnc, err = security.Encrypt(refreshToken, testKey)
		require.NoError(t, err)
	}
	conn := &models.OAuthConnection{
		UserID:          userID,
		Provider:        provider,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		IsConnected:     true,
	}
	require.NoError(t, conns.Upsert(conn))
	return conn
}

func TestServiceComplete(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:           models.ProviderPayPal,
		exchangeTokens: &Tokens{AccessToken: "at-raw", RefreshToken: "rt-raw"},
		account:        &Account{ID: "ACC1", Email: "merchant@example.com", Name: "Merchant"},
	}
	svc := NewService(conns, testKey, p)

	conn, err := svc.Complete(context.Background(), 1, models.ProviderPayPal, "code", "https://cb")
	require.NoError(t, err)

	assert.True(t, conn.IsConnected)
	assert.Equal(t, "ACC1", conn.AccountID)
	assert.Equal(t, "merchant@example.com", conn.AccountEmail)

	// tokens are stored encrypted, never in the clear
	assert.NotEqual(t, "at-raw", conn.AccessTokenEnc)
	access, err := security.Decrypt(conn.AccessTokenEnc, testKey)
	require.NoError(t, err)
	assert.Equal(t, "at-raw", access)
	refresh, err := security.Decrypt(conn.RefreshTokenEnc, testKey)
	require.NoError(t, err)
	assert.Equal(t, "rt-raw", refresh)
}

// A metadata fetch failure is logged but the connection is stored anyway;
// the tokens are already valid at that point.
func TestServiceCompleteAccountFetchFailure(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:           models.ProviderPayPal,
		exchangeTokens: &Tokens{AccessToken: "at-raw"},
		accountErr:     errors.New("userinfo unavailable"),
	}
	svc := NewService(conns, testKey, p)

	conn, err := svc.Complete(context.Background(), 1, models.ProviderPayPal, "code", "https://cb")
	require.NoError(t, err)
	assert.True(t, conn.IsConnected)
	assert.Empty(t, conn.AccountEmail)

	stored, err := conns.GetByUserAndProvider(1, models.ProviderPayPal)
	require.NoError(t, err)
	assert.True(t, stored.IsConnected)
}

func TestServiceCompleteExchangeFailure(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:        models.ProviderPayPal,
		exchangeErr: &TokenExchangeError{Provider: models.ProviderPayPal, StatusCode: 400, Body: "bad code"},
	}
	svc := NewService(conns, testKey, p)

	_, err := svc.Complete(context.Background(), 1, models.ProviderPayPal, "bad", "https://cb")
	var terr *TokenExchangeError
	require.ErrorAs(t, err, &terr)

	_, err = conns.GetByUserAndProvider(1, models.ProviderPayPal)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestServiceUnknownProvider(t *testing.T) {
	svc := NewService(newConnTestRepo(t), testKey)

	_, err := svc.AuthorizationURL("stripe", "state")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestServiceStatusNone(t *testing.T) {
	conns := newConnTestRepo(t)
	svc := NewService(conns, testKey, &fakeProvider{name: models.ProviderPayPal})

	conn, err := svc.Status(context.Background(), 1, models.ProviderPayPal)
	require.NoError(t, err)
	assert.Nil(t, conn)
}

// A connection stored under a previous user row is adopted by the requesting
// user instead of being reported as disconnected.
func TestServiceStatusAdoptsOrphan(t *testing.T) {
	conns := newConnTestRepo(t)
	svc := NewService(conns, testKey, &fakeProvider{name: models.ProviderPayPal})
	orphan := seedConnection(t, conns, 99, models.ProviderPayPal, "at", "rt")

	conn, err := svc.Status(context.Background(), 1, models.ProviderPayPal)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, uint(1), conn.UserID)
	assert.Equal(t, orphan.ID, conn.ID)

	// the row moved, it was not duplicated
	_, err = conns.GetByUserAndProvider(99, models.ProviderPayPal)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestServiceDisconnectPayPalKeepsRow(t *testing.T) {
	conns := newConnTestRepo(t)
	svc := NewService(conns, testKey, &fakeProvider{name: models.ProviderPayPal})
	seedConnection(t, conns, 1, models.ProviderPayPal, "at", "rt")

	require.NoError(t, svc.Disconnect(context.Background(), 1, models.ProviderPayPal))

	stored, err := conns.GetByUserAndProvider(1, models.ProviderPayPal)
	require.NoError(t, err)
	assert.False(t, stored.IsConnected)
	assert.Empty(t, stored.AccessTokenEnc)
	assert.Empty(t, stored.RefreshTokenEnc)
}

func TestServiceDisconnectGmailDeletesRow(t *testing.T) {
	conns := newConnTestRepo(t)
	svc := NewService(conns, testKey, &fakeProvider{name: models.ProviderGmail})
	seedConnection(t, conns, 1, models.ProviderGmail, "at", "rt")

	require.NoError(t, svc.Disconnect(context.Background(), 1, models.ProviderGmail))

	_, err := conns.GetByUserAndProvider(1, models.ProviderGmail)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestWithAccessTokenDecryptsToken(t *testing.T) {
	conns := newConnTestRepo(t)
	svc := NewService(conns, testKey, &fakeProvider{name: models.ProviderPayPal})
	conn := seedConnection(t, conns, 1, models.ProviderPayPal, "at-clear", "rt-clear")

	var seen string
	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		seen = accessToken
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "at-clear", seen)
}

// On a 401 the service refreshes exactly once, persists the rotated tokens
// and retries the callback with the new access token.
func TestWithAccessTokenRefreshOn401(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:          models.ProviderPayPal,
		refreshTokens: &Tokens{AccessToken: "at-new", RefreshToken: "rt-new"},
	}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderPayPal, "at-old", "rt-old")

	var calls []string
	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		calls = append(calls, accessToken)
		if accessToken == "at-old" {
			return ErrUnauthorized
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"at-old", "at-new"}, calls)
	assert.Equal(t, 1, p.refreshCalls)

	stored, err := conns.GetByUserAndProvider(1, models.ProviderPayPal)
	require.NoError(t, err)
	access, err := security.Decrypt(stored.AccessTokenEnc, testKey)
	require.NoError(t, err)
	assert.Equal(t, "at-new", access)
	refresh, err := security.Decrypt(stored.RefreshTokenEnc, testKey)
	require.NoError(t, err)
	assert.Equal(t, "rt-new", refresh)
}

// When the token endpoint does not rotate the refresh token, the stored one
// is kept.
func TestWithAccessTokenRefreshKeepsUnrotatedRefreshToken(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:          models.ProviderGmail,
		refreshTokens: &Tokens{AccessToken: "at-new"},
	}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderGmail, "at-old", "rt-stable")

	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		if accessToken == "at-old" {
			return ErrUnauthorized
		}
		return nil
	})
	require.NoError(t, err)

	stored, err := conns.GetByUserAndProvider(1, models.ProviderGmail)
	require.NoError(t, err)
	refresh, err := security.Decrypt(stored.RefreshTokenEnc, testKey)
	require.NoError(t, err)
	assert.Equal(t, "rt-stable", refresh)
}

// A failed refresh surfaces the original rejection and leaves the stored
// tokens untouched.
func TestWithAccessTokenRefreshFailure(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{
		name:       models.ProviderPayPal,
		refreshErr: &TokenExchangeError{Provider: models.ProviderPayPal, StatusCode: 400, Body: "invalid refresh token"},
	}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderPayPal, "at-old", "rt-old")
	originalEnc := conn.AccessTokenEnc

	fnCalls := 0
	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		fnCalls++
		return ErrUnauthorized
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, fnCalls)
	assert.Equal(t, 1, p.refreshCalls)

	stored, err := conns.GetByUserAndProvider(1, models.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, originalEnc, stored.AccessTokenEnc)
}

// Mailchimp tokens do not expire; no refresh is ever attempted and the 401
// is surfaced as-is.
func TestWithAccessTokenMailchimpNoRefresh(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{name: models.ProviderMailchimp}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderMailchimp, "at", "")

	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		return ErrUnauthorized
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, p.refreshCalls)
}

// Network timeouts are retried once without refreshing.
func TestWithAccessTokenTimeoutRetry(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{name: models.ProviderPayPal}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderPayPal, "at", "rt")

	fnCalls := 0
	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		fnCalls++
		if fnCalls == 1 {
			return timeoutError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fnCalls)
	assert.Zero(t, p.refreshCalls)
}

func TestWithAccessTokenOtherErrorNoRetry(t *testing.T) {
	conns := newConnTestRepo(t)
	p := &fakeProvider{name: models.ProviderPayPal}
	svc := NewService(conns, testKey, p)
	conn := seedConnection(t, conns, 1, models.ProviderPayPal, "at", "rt")

	boom := errors.New("rate limited")
	fnCalls := 0
	err := svc.WithAccessToken(context.Background(), conn, func(accessToken string) error {
		fnCalls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fnCalls)
	assert.Zero(t, p.refreshCalls)
}
