package connect

import (
	"context"
	"errors"
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/security"
)

// ErrUnknownProvider is returned for provider names the service was not
// configured with.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// Service owns the generic connection lifecycle: code exchange, encrypted
// token storage, status reporting with orphan adoption, disconnect, and the
// refresh-on-401 retry protocol. Provider-specific endpoint knowledge stays
// behind the Provider interface.
type Service struct {
	providers     map[string]Provider
	conns         repository.ConnectionRepository
	encryptionKey string
}

// NewService creates a connection service over the given providers.
func NewService(conns repository.ConnectionRepository, encryptionKey string, providers ...Provider) *Service {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers:     m,
		conns:         conns,
		encryptionKey: encryptionKey,
	}
}

// Provider returns the configured provider for name.
func (s *Service) Provider(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// AuthorizationURL builds the provider consent URL carrying the given state.
func (s *Service) AuthorizationURL(provider, state string) (string, error) {
	p, err := s.Provider(provider)
	if err != nil {
		return "", err
	}
	return p.AuthorizationURL(state)
}

// Complete finishes an OAuth flow: it exchanges the authorization code,
// fetches account metadata, encrypts the tokens and upserts the connection
// row keyed (userID, provider). A metadata fetch failure is logged and the
// connection is stored anyway; the tokens are already valid at that point.
func (s *Service) Complete(ctx context.Context, userID uint, provider, code, redirectURI string) (*models.OAuthConnection, error) {
	p, err := s.Provider(provider)
	if err != nil {
		return nil, err
	}

	tokens, err := p.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	accessEnc, err := security.Encrypt(tokens.AccessToken, s.encryptionKey)
	if err != nil {
		return nil, err
	}
	refreshEnc := ""
	if tokens.RefreshToken != "" {
		refreshEnc, err = security.Encrypt(tokens.RefreshToken, s.encryptionKey)
		if err != nil {
			return nil, err
		}
	}

	conn := &models.OAuthConnection{
		UserID:          userID,
		Provider:        provider,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		IsConnected:     true,
	}

	account, err := p.FetchAccount(ctx, tokens.AccessToken)
	if err != nil {
		fiberlog.Errorf("%s account metadata fetch failed for user %d: %v", provider, userID, err)
	} else {
		conn.AccountID = account.ID
		conn.AccountEmail = account.Email
		conn.AccountName = account.Name
		conn.Datacenter = account.Datacenter
	}

	if err := s.conns.Upsert(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Status returns the user's connection for provider, or nil when none exists.
// When the user has no row but another row exists for the provider, that row
// is reassigned to the user with a single conditional update before being
// reported. This keeps a single-tenant deployment working after its user row
// is recreated.
func (s *Service) Status(ctx context.Context, userID uint, provider string) (*models.OAuthConnection, error) {
	conn, err := s.conns.GetByUserAndProvider(userID, provider)
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	orphan, err := s.conns.GetAnyConnectedByProvider(provider)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	moved, err := s.conns.AdoptByProvider(orphan.ID, userID)
	if err != nil {
		return nil, err
	}
	if moved > 0 {
		fiberlog.Infof("adopted %s connection %d for user %d", provider, orphan.ID, userID)
	}
	return s.conns.GetByUserAndProvider(userID, provider)
}

// Disconnect severs the user's connection. PayPal keeps the row with tokens
// cleared so account metadata survives a reconnect; other providers are
// removed outright.
func (s *Service) Disconnect(ctx context.Context, userID uint, provider string) error {
	if provider == models.ProviderPayPal {
		return s.conns.Disconnect(userID, provider)
	}
	return s.conns.Delete(userID, provider)
}

// WithAccessToken decrypts the connection's access token and invokes fn with
// it. On ErrUnauthorized it performs exactly one token refresh, persists the
// rotated tokens and retries once; a failed refresh leaves the stored
// connection untouched and surfaces the original rejection. Network timeouts
// are retried once without refreshing.
func (s *Service) WithAccessToken(ctx context.Context, conn *models.OAuthConnection, fn func(accessToken string) error) error {
	accessToken, err := security.Decrypt(conn.AccessTokenEnc, s.encryptionKey)
	if err != nil {
		return err
	}

	err = fn(accessToken)
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return fn(accessToken)
	}
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if !conn.SupportsRefresh() || conn.RefreshTokenEnc == "" {
		return err
	}
	refreshToken, derr := security.Decrypt(conn.RefreshTokenEnc, s.encryptionKey)
	if derr != nil {
		return derr
	}

	p, perr := s.Provider(conn.Provider)
	if perr != nil {
		return err
	}
	tokens, rerr := p.RefreshToken(ctx, refreshToken)
	if rerr != nil {
		fiberlog.Errorf("%s token refresh failed for connection %d: %v", conn.Provider, conn.ID, rerr)
		return err
	}

	accessEnc, eerr := security.Encrypt(tokens.AccessToken, s.encryptionKey)
	if eerr != nil {
		return eerr
	}
	refreshEnc := ""
	if tokens.RefreshToken != "" {
		refreshEnc, eerr = security.Encrypt(tokens.RefreshToken, s.encryptionKey)
		if eerr != nil {
			return eerr
		}
	}
	if uerr := s.conns.UpdateTokens(conn.ID, accessEnc, refreshEnc); uerr != nil {
		return uerr
	}
	conn.AccessTokenEnc = accessEnc
	if refreshEnc != "" {
		conn.RefreshTokenEnc = refreshEnc
	}

	return fn(tokens.AccessToken)
}
