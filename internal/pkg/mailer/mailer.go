package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/nwittke/billfox/app/models"
)

var (
	sendGridSendURL = "https://api.sendgrid.com/v3/mail/send"
	mandrillSendURL = "https://mandrillapp.com/api/1.0/messages/send"
	brevoSendURL    = "https://api.brevo.com/v3/smtp/email"
	postmarkSendURL = "https://api.postmarkapp.com/email"
)

// smtpHosts maps personal mailbox providers to their submission endpoints.
// The account's app password is stored in the config's APIKey field.
var smtpHosts = map[string]string{
	"gmail":   "smtp.gmail.com:587",
	"outlook": "smtp-mail.outlook.com:587",
	"yahoo":   "smtp.mail.yahoo.com:587",
	"icloud":  "smtp.mail.me.com:587",
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

// SendResult reports the outcome for one recipient. Per-recipient failures
// never abort the batch.
type SendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrNotConfigured is returned when a send is attempted through a provider
// the user has no active configuration for.
var ErrNotConfigured = errors.New("email provider is not configured")

// Send delivers one message per recipient through the configured provider,
// dispatching on the config's provider name. Recipients are processed
// sequentially; each failure is captured in its result entry.
func Send(ctx context.Context, cfg *models.EmailProvider, recipients []string, subject, textBody, htmlBody string) ([]SendResult, error) {
	if cfg == nil {
		return nil, ErrNotConfigured
	}

	var send func(ctx context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error
	switch cfg.ProviderName {
	case "sendgrid":
		send = sendViaSendGrid
	case "mailchimp":
		send = sendViaMandrill
	case "sendinblue":
		send = sendViaBrevo
	case "postmark":
		send = sendViaPostmark
	default:
		if models.IsSMTPProvider(cfg.ProviderName) {
			send = sendViaSMTP
		} else {
			return nil, fmt.Errorf("unsupported email provider: %s", cfg.ProviderName)
		}
	}

	results := make([]SendResult, 0, len(recipients))
	for _, to := range recipients {
		if err := send(ctx, cfg, to, subject, textBody, htmlBody); err != nil {
			fiberlog.Errorf("send via %s to %s failed: %v", cfg.ProviderName, to, err)
			results = append(results, SendResult{Email: to, Error: err.Error()})
			continue
		}
		results = append(results, SendResult{Email: to, Success: true})
	}
	return results, nil
}

func sendViaSMTP(_ context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error {
	addr := smtpHosts[cfg.ProviderName]
	if cfg.SMTPHost != "" {
		addr = fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	}
	host := addr[:strings.IndexByte(addr, ':')]

	sender := cfg.FromEmail
	if sender == "" {
		return errors.New("a from address is required for SMTP providers")
	}
	username := cfg.SMTPUsername
	if username == "" {
		username = sender
	}

	var auth smtp.Auth
	if cfg.APIKey != "" {
		auth = smtp.PlainAuth("", username, cfg.APIKey, host)
	}

	body := htmlBody
	contentType := "text/html"
	if body == "" {
		body = textBody
		contentType = "text/plain"
	}
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: " + contentType + "; charset=UTF-8\r\n\r\n" +
			body,
	)
	return smtp.SendMail(addr, auth, sender, []string{to}, msg)
}

func sendViaSendGrid(ctx context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error {
	content := []map[string]string{{"type": "text/plain", "value": textBody}}
	if htmlBody != "" {
		content = append(content, map[string]string{"type": "text/html", "value": htmlBody})
	}
	payload := map[string]any{
		"personalizations": []map[string]any{{"to": []map[string]string{{"email": to}}}},
		"from": map[string]string{
			"email": fromOrDefault(cfg.FromEmail),
			"name":  nameOrDefault(cfg.FromName),
		},
		"subject": subject,
		"content": content,
	}

	status, body, err := postJSON(ctx, sendGridSendURL, payload, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	})
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusAccepted {
		return nil
	}

	lower := strings.ToLower(body)
	if strings.Contains(lower, "authorization") &&
		(strings.Contains(lower, "invalid") || strings.Contains(lower, "expired") || strings.Contains(lower, "revoked")) {
		return fmt.Errorf("sender %q is not verified with SendGrid; verify it at https://app.sendgrid.com/settings/sender_auth", cfg.FromEmail)
	}
	if strings.Contains(lower, "not a verified sender") || strings.Contains(lower, "does not contain a verified") {
		return fmt.Errorf("sender %q is not verified in your SendGrid account", cfg.FromEmail)
	}
	return fmt.Errorf("sendgrid send failed: status=%d body=%s", status, body)
}

// sendViaMandrill sends through Mailchimp Transactional (Mandrill), which
// uses a dedicated key distinct from regular Mailchimp API keys.
func sendViaMandrill(ctx context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error {
	if strings.HasPrefix(cfg.APIKey, "sk") {
		return errors.New("invalid Mandrill API key; Mandrill keys differ from regular Mailchimp API keys")
	}

	message := map[string]any{
		"from_email": fromOrDefault(cfg.FromEmail),
		"from_name":  nameOrDefault(cfg.FromName),
		"to":         []map[string]string{{"email": to, "type": "to"}},
		"subject":    subject,
		"text":       textBody,
	}
	if htmlBody != "" {
		message["html"] = htmlBody
	}
	payload := map[string]any{"key": cfg.APIKey, "message": message}

	status, body, err := postJSON(ctx, mandrillSendURL, payload, nil)
	if err != nil {
		return err
	}

	// Mandrill answers 200 for both outcomes; the payload carries the verdict,
	// as an array on success and an object on key errors.
	var entries []struct {
		Status       string `json:"status"`
		RejectReason string `json:"reject_reason"`
		Message      string `json:"message"`
		Name         string `json:"name"`
	}
	if uerr := json.Unmarshal([]byte(body), &entries); uerr == nil && len(entries) > 0 {
		if entries[0].Name == "Invalid_Key" {
			return errors.New("invalid Mandrill API key")
		}
		if entries[0].Status == "sent" || entries[0].Status == "queued" {
			return nil
		}
		reason := entries[0].RejectReason
		if reason == "" {
			reason = entries[0].Message
		}
		return fmt.Errorf("mandrill rejected message: %s", reason)
	}

	var single struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if uerr := json.Unmarshal([]byte(body), &single); uerr == nil {
		if single.Name == "Invalid_Key" {
			return errors.New("invalid Mandrill API key")
		}
		if single.Message != "" {
			return fmt.Errorf("mandrill send failed: %s", single.Message)
		}
	}
	return fmt.Errorf("mandrill send failed: status=%d body=%s", status, body)
}

func sendViaBrevo(ctx context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error {
	payload := map[string]any{
		"sender": map[string]string{
			"email": fromOrDefault(cfg.FromEmail),
			"name":  nameOrDefault(cfg.FromName),
		},
		"to":          []map[string]string{{"email": to}},
		"subject":     subject,
		"textContent": textBody,
	}
	if htmlBody != "" {
		payload["htmlContent"] = htmlBody
	}

	status, body, err := postJSON(ctx, brevoSendURL, payload, map[string]string{
		"api-key": cfg.APIKey,
	})
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	return fmt.Errorf("brevo send failed: status=%d body=%s", status, body)
}

func sendViaPostmark(ctx context.Context, cfg *models.EmailProvider, to, subject, textBody, htmlBody string) error {
	payload := map[string]any{
		"From":     fromOrDefault(cfg.FromEmail),
		"To":       to,
		"Subject":  subject,
		"TextBody": textBody,
	}
	if htmlBody != "" {
		payload["HtmlBody"] = htmlBody
	}

	status, body, err := postJSON(ctx, postmarkSendURL, payload, map[string]string{
		"X-Postmark-Server-Token": cfg.APIKey,
	})
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	return fmt.Errorf("postmark send failed: status=%d body=%s", status, body)
}

func postJSON(ctx context.Context, url string, payload any, headers map[string]string) (int, string, error) {
	return requestJSON(ctx, http.MethodPost, url, payload, headers)
}

func requestJSON(ctx context.Context, method, url string, payload any, headers map[string]string) (int, string, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, "", err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, "", err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

func fromOrDefault(email string) string {
	if email == "" {
		return "noreply@example.com"
	}
	return email
}

func nameOrDefault(name string) string {
	if name == "" {
		return "BillFox"
	}
	return name
}
