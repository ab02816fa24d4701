package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Tokens is a provider token pair as returned by a token endpoint, in the
// clear. Callers encrypt before persisting.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// Account is provider account metadata fetched after a successful connect.
// Fields a provider cannot supply stay empty; absence is recorded, not fatal.
type Account struct {
	ID         string
	Email      string
	Name       string
	Datacenter string
	Balance    *Balance
}

// Balance is an optional account balance (PayPal only; unavailable in
// sandbox).
type Balance struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// ErrUnauthorized marks a provider API rejection of the presented access
// token. The orchestration layer reacts with exactly one refresh-and-retry.
var ErrUnauthorized = errors.New("provider rejected access token")

// ErrRefreshUnsupported is returned by providers whose access tokens do not
// expire (Mailchimp).
var ErrRefreshUnsupported = errors.New("provider does not support token refresh")

// TokenExchangeError carries the provider's raw error payload when a token
// endpoint rejects a code or refresh token, for operator diagnostics.
type TokenExchangeError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s token exchange failed: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// Provider is the four-operation contract every OAuth integration satisfies.
// The generic "exchange -> store -> refresh-on-401" orchestration lives in
// Service; providers only know their own endpoints and quirks.
type Provider interface {
	Name() string
	AuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error)
	FetchAccount(ctx context.Context, accessToken string) (*Account, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error)
}

// ExternalInvoice is a provider-neutral view of one fetched invoice record.
type ExternalInvoice struct {
	ExternalID    string
	InvoiceNumber string
	ClientName    string
	ClientEmail   string
	Amount        float64
	DueDate       string
	Status        string
}

// InvoiceSource is implemented by providers that expose an invoice list
// (currently PayPal).
type InvoiceSource interface {
	Provider
	FetchInvoices(ctx context.Context, accessToken string) ([]ExternalInvoice, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
	}
}

// IsTimeout reports whether err is a network timeout. Timeouts are retried
// once by the orchestration layer, without triggering a token refresh.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
