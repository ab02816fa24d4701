package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/internal/pkg/env"
)

const (
	mailchimpAuthorizeURL = "https://login.mailchimp.com/oauth2/authorize"
	mailchimpTokenURL     = "https://login.mailchimp.com/oauth2/token"
	mailchimpMetadataURL  = "https://login.mailchimp.com/oauth2/metadata"
)

// MailchimpClient implements Provider against Mailchimp's OAuth endpoints.
// Tokens do not expire under this flow, so RefreshToken is unsupported. The
// metadata endpoint yields the account datacenter subdomain required for all
// subsequent API calls.
type MailchimpClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeURL string
	TokenURL     string
	MetadataURL  string

	HTTPClient *http.Client
}

func NewMailchimpClientFromEnv() *MailchimpClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("MAILCHIMP_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/api/oauth/mailchimp/callback"
	}

	return &MailchimpClient{
		ClientID:     strings.TrimSpace(env.GetEnv("MAILCHIMP_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("MAILCHIMP_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		AuthorizeURL: mailchimpAuthorizeURL,
		TokenURL:     mailchimpTokenURL,
		MetadataURL:  mailchimpMetadataURL,
		HTTPClient:   defaultHTTPClient(),
	}
}

func (c *MailchimpClient) Name() string {
	return models.ProviderMailchimp
}

func (c *MailchimpClient) AuthorizationURL(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("MAILCHIMP_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("MAILCHIMP_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode posts the code with client credentials in the form body,
// which is Mailchimp's required scheme.
func (c *MailchimpClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("client credentials are not configured")}
	}
	if strings.TrimSpace(code) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("oauth code is required")}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", strings.TrimSpace(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TokenExchangeError{Provider: c.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: err}
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("token endpoint returned empty access_token")}
	}
	return &Tokens{AccessToken: out.AccessToken}, nil
}

// FetchAccount queries the OAuth metadata endpoint, which authenticates with
// the "OAuth" scheme rather than "Bearer".
func (c *MailchimpClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("access token is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MetadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("mailchimp metadata: %w", ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mailchimp metadata request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var meta struct {
		DC          string `json:"dc"`
		AccountName string `json:"accountname"`
		UserID      json.Number `json:"user_id"`
		Login       struct {
			LoginEmail string `json:"login_email"`
		} `json:"login"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, err
	}

	return &Account{
		ID:         meta.UserID.String(),
		Email:      strings.TrimSpace(meta.Login.LoginEmail),
		Name:       strings.TrimSpace(meta.AccountName),
		Datacenter: strings.TrimSpace(meta.DC),
	}, nil
}

func (c *MailchimpClient) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	return nil, ErrRefreshUnsupported
}

// APIBase returns the datacenter-specific API base URL.
func MailchimpAPIBase(dc string) string {
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc)
}
