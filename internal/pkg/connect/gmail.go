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
	gmailAuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	gmailTokenURL     = "https://oauth2.googleapis.com/token"
	gmailUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"

	gmailScopes = "https://www.googleapis.com/auth/gmail.compose https://www.googleapis.com/auth/gmail.readonly"
)

// GmailClient implements Provider against Google's OAuth2 code flow. The
// authorization URL always requests access_type=offline with prompt=consent
// so every connect yields a refresh token.
type GmailClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string

	HTTPClient *http.Client
}

func NewGmailClientFromEnv() *GmailClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("GMAIL_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/api/oauth/gmail/callback"
	}

	return &GmailClient{
		ClientID:     strings.TrimSpace(env.GetEnv("GMAIL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("GMAIL_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		AuthorizeURL: gmailAuthorizeURL,
		TokenURL:     gmailTokenURL,
		UserInfoURL:  gmailUserInfoURL,
		HTTPClient:   defaultHTTPClient(),
	}
}

func (c *GmailClient) Name() string {
	return models.ProviderGmail
}

func (c *GmailClient) AuthorizationURL(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("GMAIL_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("GMAIL_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("scope", gmailScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *GmailClient) tokenRequest(ctx context.Context, form url.Values) (*Tokens, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("client credentials are not configured")}
	}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

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
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: err}
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("token endpoint returned empty access_token")}
	}
	return &Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken, ExpiresIn: out.ExpiresIn}, nil
}

func (c *GmailClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("oauth code is required")}
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, form)
}

func (c *GmailClient) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("refresh token is required")}
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *GmailClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("access token is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("gmail userinfo: %w", ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gmail userinfo request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}

	account := &Account{
		ID:    strings.TrimSpace(info.ID),
		Email: strings.TrimSpace(info.Email),
		Name:  strings.TrimSpace(info.Name),
	}
	if account.Name == "" {
		account.Name = account.Email
	}
	return account, nil
}
