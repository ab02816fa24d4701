package mailer

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/internal/pkg/connect"
)

var (
	brevoCampaignsURL   = "https://api.brevo.com/v3/emailCampaigns"
	sendGridSinglesURL  = "https://api.sendgrid.com/v3/marketing/singlesends"
	postmarkTemplateURL = "https://api.postmarkapp.com/templates"
	gmailDraftsURL      = "https://gmail.googleapis.com/gmail/v1/users/me/drafts"
)

// Draft is a created campaign or template draft plus the provider UI link
// where the user finishes editing it.
type Draft struct {
	ID      string `json:"id"`
	EditURL string `json:"edit_url"`
	Message string `json:"message"`
}

// Audience is one Mailchimp list.
type Audience struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// CreateBrevoCampaign creates an email campaign draft in Brevo.
func CreateBrevoCampaign(ctx context.Context, cfg *models.EmailProvider, name, subject, htmlContent, textContent string) (*Draft, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("a verified sender email is required for Brevo campaigns")
	}
	if name == "" {
		name = defaultCampaignName()
	}

	payload := map[string]any{
		"name":    name,
		"subject": subject,
		"sender": map[string]string{
			"name":  nameOrDefault(cfg.FromName),
			"email": cfg.FromEmail,
		},
		"htmlContent": htmlOrWrapped(htmlContent, textContent),
	}
	status, body, err := postJSON(ctx, brevoCampaignsURL, payload, map[string]string{"api-key": cfg.APIKey})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("brevo create campaign failed: status=%d body=%s", status, body)
	}

	var campaign struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &campaign); err != nil {
		return nil, err
	}
	return &Draft{
		ID:      fmt.Sprintf("%d", campaign.ID),
		EditURL: fmt.Sprintf("https://app.brevo.com/camp/step2/%d", campaign.ID),
		Message: "Campaign draft created in Brevo",
	}, nil
}

// CreateSendGridSingleSend creates a marketing single send draft addressed to
// all contacts.
func CreateSendGridSingleSend(ctx context.Context, cfg *models.EmailProvider, name, subject, htmlContent, textContent string) (*Draft, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("a verified sender email is required for SendGrid campaigns")
	}
	if name == "" {
		name = defaultCampaignName()
	}

	payload := map[string]any{
		"name":    name,
		"send_to": map[string]any{"all": true},
		"email_config": map[string]any{
			"subject":                subject,
			"html_content":           htmlOrWrapped(htmlContent, textContent),
			"plain_content":          textContent,
			"generate_plain_content": textContent == "",
		},
	}
	status, body, err := postJSON(ctx, sendGridSinglesURL, payload, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("sendgrid create single send failed: status=%d body=%s", status, body)
	}

	var campaign struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(body), &campaign); err != nil {
		return nil, err
	}
	return &Draft{
		ID:      campaign.ID,
		EditURL: fmt.Sprintf("https://mc.sendgrid.com/single-sends/%s/build", campaign.ID),
		Message: "Single send draft created in SendGrid",
	}, nil
}

// CreatePostmarkTemplate creates a standard email template in Postmark.
func CreatePostmarkTemplate(ctx context.Context, cfg *models.EmailProvider, name, subject, htmlContent, textContent string) (*Draft, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if name == "" {
		name = defaultCampaignName()
	}

	payload := map[string]any{
		"Name":         name,
		"Subject":      subject,
		"HtmlBody":     htmlOrWrapped(htmlContent, textContent),
		"TextBody":     textContent,
		"TemplateType": "Standard",
	}
	status, body, err := postJSON(ctx, postmarkTemplateURL, payload, map[string]string{
		"X-Postmark-Server-Token": cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("postmark create template failed: status=%d body=%s", status, body)
	}

	var template struct {
		TemplateID int64 `json:"TemplateId"`
	}
	if err := json.Unmarshal([]byte(body), &template); err != nil {
		return nil, err
	}
	serverPrefix := cfg.APIKey
	if len(serverPrefix) > 8 {
		serverPrefix = serverPrefix[:8]
	}
	return &Draft{
		ID:      fmt.Sprintf("%d", template.TemplateID),
		EditURL: fmt.Sprintf("https://account.postmarkapp.com/servers/%s/templates/%d/edit", serverPrefix, template.TemplateID),
		Message: "Email template created in Postmark",
	}, nil
}

// CreateGmailDraft builds an RFC 2822 multipart message and stores it as a
// draft in the connected Gmail account. The access token comes from the
// connection service, which handles the one-shot refresh on 401.
func CreateGmailDraft(ctx context.Context, svc *connect.Service, conn *models.OAuthConnection, subject, htmlContent, textContent string) (*Draft, error) {
	raw := buildGmailRaw(conn.AccountEmail, subject, htmlContent, textContent)
	payload := map[string]any{
		"message": map[string]string{"raw": raw},
	}

	var draft struct {
		ID      string `json:"id"`
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	err := svc.WithAccessToken(ctx, conn, func(accessToken string) error {
		status, body, err := postJSON(ctx, gmailDraftsURL, payload, map[string]string{
			"Authorization": "Bearer " + accessToken,
		})
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("gmail drafts: %w", connect.ErrUnauthorized)
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("gmail create draft failed: status=%d body=%s", status, body)
		}
		return json.Unmarshal([]byte(body), &draft)
	})
	if err != nil {
		return nil, err
	}
	return &Draft{
		ID:      draft.ID,
		EditURL: "https://mail.google.com/mail/u/0/#drafts?compose=" + draft.Message.ID,
		Message: "Draft created in Gmail",
	}, nil
}

// CreateMailchimpCampaign creates a regular campaign draft against an
// audience and, when content is given, sets it in a second call. A content
// failure after a created campaign is not fatal.
func CreateMailchimpCampaign(ctx context.Context, svc *connect.Service, conn *models.OAuthConnection, audienceID, subject, previewText, fromName, htmlContent, textContent string) (*Draft, error) {
	if conn.AccountEmail == "" {
		return nil, errors.New("mailchimp account email unavailable; reconnect the account")
	}
	base := connect.MailchimpAPIBase(conn.Datacenter)

	createPayload := map[string]any{
		"type":       "regular",
		"recipients": map[string]string{"list_id": audienceID},
		"settings": map[string]string{
			"subject_line": subject,
			"preview_text": previewText,
			"from_name":    nameOrDefault(fromName),
			"reply_to":     conn.AccountEmail,
		},
	}

	var campaign struct {
		ID    string `json:"id"`
		WebID int64  `json:"web_id"`
	}
	err := svc.WithAccessToken(ctx, conn, func(accessToken string) error {
		status, body, err := mailchimpJSON(ctx, http.MethodPost, base+"/campaigns", accessToken, createPayload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("mailchimp campaigns: %w", connect.ErrUnauthorized)
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("mailchimp create campaign failed: status=%d body=%s", status, body)
		}
		if err := json.Unmarshal([]byte(body), &campaign); err != nil {
			return err
		}

		if htmlContent == "" && textContent == "" {
			return nil
		}
		contentPayload := map[string]string{
			"html":       htmlOrWrapped(htmlContent, textContent),
			"plain_text": textContent,
		}
		cstatus, cbody, cerr := mailchimpJSON(ctx, http.MethodPut, base+"/campaigns/"+campaign.ID+"/content", accessToken, contentPayload)
		if cerr != nil || cstatus < 200 || cstatus >= 300 {
			// Campaign exists; the user can still set content in the UI.
			_ = cbody
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Draft{
		ID:      campaign.ID,
		EditURL: fmt.Sprintf("https://%s.admin.mailchimp.com/campaigns/edit?id=%d", conn.Datacenter, campaign.WebID),
		Message: "Campaign draft created in Mailchimp",
	}, nil
}

// ListMailchimpAudiences fetches the account's lists.
func ListMailchimpAudiences(ctx context.Context, svc *connect.Service, conn *models.OAuthConnection) ([]Audience, error) {
	base := connect.MailchimpAPIBase(conn.Datacenter)

	var out struct {
		Lists []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Stats struct {
				MemberCount int `json:"member_count"`
			} `json:"stats"`
		} `json:"lists"`
	}
	err := svc.WithAccessToken(ctx, conn, func(accessToken string) error {
		status, body, err := mailchimpJSON(ctx, http.MethodGet, base+"/lists?count=100", accessToken, nil)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("mailchimp lists: %w", connect.ErrUnauthorized)
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("mailchimp list audiences failed: status=%d body=%s", status, body)
		}
		return json.Unmarshal([]byte(body), &out)
	})
	if err != nil {
		return nil, err
	}

	audiences := make([]Audience, 0, len(out.Lists))
	for _, list := range out.Lists {
		audiences = append(audiences, Audience{
			ID:          list.ID,
			Name:        list.Name,
			MemberCount: list.Stats.MemberCount,
		})
	}
	return audiences, nil
}

// AddMailchimpContact upserts a subscriber into an audience. Mailchimp keys
// members by the MD5 of the lowercased email, which makes the PUT idempotent.
func AddMailchimpContact(ctx context.Context, svc *connect.Service, conn *models.OAuthConnection, audienceID, email, firstName, lastName string) (string, error) {
	base := connect.MailchimpAPIBase(conn.Datacenter)
	hash := md5.Sum([]byte(strings.ToLower(email)))
	subscriberHash := fmt.Sprintf("%x", hash)

	mergeFields := map[string]string{}
	if firstName != "" {
		mergeFields["FNAME"] = firstName
	}
	if lastName != "" {
		mergeFields["LNAME"] = lastName
	}
	payload := map[string]any{
		"email_address": email,
		"status_if_new": "subscribed",
		"merge_fields":  mergeFields,
	}

	var contact struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := svc.WithAccessToken(ctx, conn, func(accessToken string) error {
		url := fmt.Sprintf("%s/lists/%s/members/%s", base, audienceID, subscriberHash)
		status, body, err := mailchimpJSON(ctx, http.MethodPut, url, accessToken, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("mailchimp members: %w", connect.ErrUnauthorized)
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("mailchimp add contact failed: status=%d body=%s", status, body)
		}
		return json.Unmarshal([]byte(body), &contact)
	})
	if err != nil {
		return "", err
	}
	return contact.ID, nil
}

// mailchimpJSON issues one Mailchimp API call with the OAuth token scheme
// the metadata endpoint dictates.
func mailchimpJSON(ctx context.Context, method, url, accessToken string, payload any) (int, string, error) {
	return requestJSON(ctx, method, url, payload, map[string]string{
		"Authorization": "OAuth " + accessToken,
	})
}

// buildGmailRaw assembles a base64url-encoded multipart/alternative message
// for the Gmail drafts API. The To header is left blank; the user addresses
// the draft in Gmail.
func buildGmailRaw(from, subject, htmlContent, textContent string) string {
	boundary := "boundary_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	plain := textContent
	if plain == "" {
		plain = stripTags(htmlContent)
	}
	html := htmlContent
	if html == "" {
		html = "<html><body>" + strings.ReplaceAll(textContent, "\n", "<br>") + "</body></html>"
	}

	raw := strings.Join([]string{
		"From: " + from,
		"To: ",
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="` + boundary + `"`,
		"",
		"--" + boundary,
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		plain,
		"--" + boundary,
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		html,
		"--" + boundary + "--",
	}, "\r\n")

	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func htmlOrWrapped(htmlContent, textContent string) string {
	if htmlContent != "" {
		return htmlContent
	}
	return "<html><body><p>" + strings.ReplaceAll(textContent, "\n", "<br>") + "</p></body></html>"
}

func defaultCampaignName() string {
	return "Campaign - " + time.Now().Format("2006-01-02")
}
