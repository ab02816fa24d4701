package connect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/internal/pkg/env"
)

const (
	paypalLiveWebBase    = "https://www.paypal.com"
	paypalSandboxWebBase = "https://www.sandbox.paypal.com"
	paypalLiveAPIBase    = "https://api-m.paypal.com"
	paypalSandboxAPIBase = "https://api-m.sandbox.paypal.com"

	paypalScopes = "openid profile email https://uri.paypal.com/services/invoicing"
)

// PayPalClient implements Provider and InvoiceSource against PayPal's REST
// API. Sandbox vs production is selected by the client-id prefix heuristic
// ('A' prefix means a sandbox app) unless base URLs are overridden.
type PayPalClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	WebBase string
	APIBase string

	HTTPClient *http.Client
}

func NewPayPalClientFromEnv() *PayPalClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("PAYPAL_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/api/integrations/paypal/callback"
	}

	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		WebBase:      strings.TrimSpace(env.GetEnv("PAYPAL_WEB_BASE_URL", "")),
		APIBase:      strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", "")),
		HTTPClient:   defaultHTTPClient(),
	}
}

func (c *PayPalClient) Name() string {
	return models.ProviderPayPal
}

// sandbox client ids start with 'A'
func (c *PayPalClient) isSandbox() bool {
	return strings.HasPrefix(c.ClientID, "A")
}

func (c *PayPalClient) webBase() string {
	if c.WebBase != "" {
		return c.WebBase
	}
	if c.isSandbox() {
		return paypalSandboxWebBase
	}
	return paypalLiveWebBase
}

func (c *PayPalClient) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	if c.isSandbox() {
		return paypalSandboxAPIBase
	}
	return paypalLiveAPIBase
}

func (c *PayPalClient) AuthorizationURL(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("PAYPAL_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("PAYPAL_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.webBase() + "/signin/authorize")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("flowEntry", "static")
	q.Set("client_id", c.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", paypalScopes)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// tokenRequest posts to the oauth2 token endpoint with basic-auth client
// credentials, which is PayPal's required scheme.
func (c *PayPalClient) tokenRequest(ctx context.Context, form url.Values) (*Tokens, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("client credentials are not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase()+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+credentials)

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

func (c *PayPalClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("oauth code is required")}
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))
	form.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, form)
}

func (c *PayPalClient) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &TokenExchangeError{Provider: c.Name(), Err: errors.New("refresh token is required")}
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, form)
}

func (c *PayPalClient) apiGet(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("paypal %s: %w", path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

// FetchAccount resolves the connected account's identity via the OpenID
// userinfo endpoint and, best effort, its primary balance. The balance call
// is unavailable in sandbox; its failure never fails the connect.
func (c *PayPalClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("access token is required")
	}

	var userInfo struct {
		PayerID string `json:"payer_id"`
		UserID  string `json:"user_id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := c.apiGet(ctx, accessToken, "/v1/identity/openid-userinfo?schema=openid", &userInfo); err != nil {
		return nil, err
	}

	account := &Account{
		Email: strings.TrimSpace(userInfo.Email),
		Name:  strings.TrimSpace(userInfo.Name),
	}
	account.ID = strings.TrimSpace(userInfo.PayerID)
	if account.ID == "" {
		account.ID = strings.TrimSpace(userInfo.UserID)
	}

	var balances struct {
		Balances []struct {
			Currency         string `json:"currency"`
			AvailableBalance struct {
				Value string `json:"value"`
			} `json:"available_balance"`
		} `json:"balances"`
	}
	if err := c.apiGet(ctx, accessToken, "/v1/reporting/balances", &balances); err == nil && len(balances.Balances) > 0 {
		value := balances.Balances[0].AvailableBalance.Value
		if value == "" {
			value = "0.00"
		}
		account.Balance = &Balance{Currency: balances.Balances[0].Currency, Value: value}
	}

	return account, nil
}

// FetchInvoices lists the account's invoices via the v2 invoicing API.
func (c *PayPalClient) FetchInvoices(ctx context.Context, accessToken string) ([]ExternalInvoice, error) {
	var out struct {
		Items []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Detail struct {
				InvoiceNumber string `json:"invoice_number"`
				DueDate       string `json:"due_date"`
				InvoiceDate   string `json:"invoice_date"`
			} `json:"detail"`
			Amount struct {
				Value string `json:"value"`
			} `json:"amount"`
			DueDate           string `json:"due_date"`
			PrimaryRecipients []struct {
				BillingInfo struct {
					Name struct {
						GivenName string `json:"given_name"`
						Surname   string `json:"surname"`
					} `json:"name"`
					EmailAddress string `json:"email_address"`
				} `json:"billing_info"`
			} `json:"primary_recipients"`
		} `json:"items"`
	}
	if err := c.apiGet(ctx, accessToken, "/v2/invoicing/invoices?page=1&page_size=100&total_required=true", &out); err != nil {
		return nil, err
	}

	invoices := make([]ExternalInvoice, 0, len(out.Items))
	for _, item := range out.Items {
		inv := ExternalInvoice{
			ExternalID:    item.ID,
			InvoiceNumber: item.Detail.InvoiceNumber,
			Status:        item.Status,
			ClientName:    "Unknown Client",
		}
		if inv.InvoiceNumber == "" {
			inv.InvoiceNumber = item.ID
		}
		if len(item.PrimaryRecipients) > 0 {
			billing := item.PrimaryRecipients[0].BillingInfo
			name := strings.TrimSpace(billing.Name.GivenName + " " + billing.Name.Surname)
			if name != "" {
				inv.ClientName = name
			}
			inv.ClientEmail = billing.EmailAddress
		}
		if item.Amount.Value != "" {
			if v, err := strconv.ParseFloat(item.Amount.Value, 64); err == nil {
				inv.Amount = v
			}
		}
		inv.DueDate = item.DueDate
		if inv.DueDate == "" {
			inv.DueDate = item.Detail.DueDate
		}
		if inv.DueDate == "" {
			inv.DueDate = item.Detail.InvoiceDate
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
