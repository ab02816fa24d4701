package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
	"github.com/nwittke/billfox/app/repository"
	"github.com/nwittke/billfox/internal/pkg/connect"
	"github.com/nwittke/billfox/internal/pkg/security"
)

func TestCreateBrevoCampaign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "brevo-key", r.Header.Get("api-key"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Spring promo", payload["name"])
		assert.NotEmpty(t, payload["htmlContent"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 314}`))
	}))
	defer srv.Close()
	withSendURL(t, &brevoCampaignsURL, srv.URL)

	cfg := &models.EmailProvider{ProviderName: "sendinblue", APIKey: "brevo-key", FromEmail: "marketing@acme.example"}
	draft, err := CreateBrevoCampaign(context.Background(), cfg, "Spring promo", "Hello", "", "Plain text body")
	require.NoError(t, err)
	assert.Equal(t, "314", draft.ID)
	assert.Equal(t, "https://app.brevo.com/camp/step2/314", draft.EditURL)
}

func TestCreateBrevoCampaignRequiresSender(t *testing.T) {
	cfg := &models.EmailProvider{ProviderName: "sendinblue", APIKey: "brevo-key"}
	_, err := CreateBrevoCampaign(context.Background(), cfg, "n", "s", "<p>x</p>", "")
	assert.Error(t, err)

	_, err = CreateBrevoCampaign(context.Background(), nil, "n", "s", "<p>x</p>", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateSendGridSingleSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		sendTo := payload["send_to"].(map[string]any)
		assert.Equal(t, true, sendTo["all"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "ss-42"}`))
	}))
	defer srv.Close()
	withSendURL(t, &sendGridSinglesURL, srv.URL)

	cfg := &models.EmailProvider{ProviderName: "sendgrid", APIKey: "sg-key", FromEmail: "marketing@acme.example"}
	draft, err := CreateSendGridSingleSend(context.Background(), cfg, "Promo", "Hello", "<p>Hi</p>", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "ss-42", draft.ID)
	assert.Equal(t, "https://mc.sendgrid.com/single-sends/ss-42/build", draft.EditURL)
}

func TestCreatePostmarkTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pm-server-token-abcdef", r.Header.Get("X-Postmark-Server-Token"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Standard", payload["TemplateType"])
		w.Write([]byte(`{"TemplateId": 9001, "Active": true}`))
	}))
	defer srv.Close()
	withSendURL(t, &postmarkTemplateURL, srv.URL)

	cfg := &models.EmailProvider{ProviderName: "postmark", APIKey: "pm-server-token-abcdef"}
	draft, err := CreatePostmarkTemplate(context.Background(), cfg, "Reminder", "Overdue", "<p>Pay up</p>", "")
	require.NoError(t, err)
	assert.Equal(t, "9001", draft.ID)
	// the edit URL embeds the first 8 characters of the server token
	assert.Equal(t, "https://account.postmarkapp.com/servers/pm-serve/templates/9001/edit", draft.EditURL)
}

func newGmailService(t *testing.T) (*connect.Service, *models.OAuthConnection) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OAuthConnection{}))

	conns := repository.NewConnectionRepository(db)
	key := "campaign-test-key"
	accessEnc, err := security.Encrypt("g-at", key)
	require.NoError(t, err)
	conn := &models.OAuthConnection{
		UserID:         1,
		Provider:       models.ProviderGmail,
		AccessTokenEnc: accessEnc,
		AccountEmail:   "user@gmail.example",
		IsConnected:    true,
	}
	require.NoError(t, conns.Upsert(conn))
	return connect.NewService(conns, key), conn
}

func TestCreateGmailDraft(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-at", r.Header.Get("Authorization"))
		var payload struct {
			Message struct {
				Raw string `json:"raw"`
			} `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		raw = payload.Message.Raw
		w.Write([]byte(`{"id": "d-1", "message": {"id": "m-1"}}`))
	}))
	defer srv.Close()
	withSendURL(t, &gmailDraftsURL, srv.URL)

	svc, conn := newGmailService(t)
	draft, err := CreateGmailDraft(context.Background(), svc, conn, "Overdue invoices", "<p>Hello</p>", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "d-1", draft.ID)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#drafts?compose=m-1", draft.EditURL)

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg := string(decoded)
	assert.Contains(t, msg, "From: user@gmail.example")
	assert.Contains(t, msg, "Subject: Overdue invoices")
	assert.Contains(t, msg, "multipart/alternative")
	// the draft is addressed later in Gmail
	assert.Contains(t, msg, "To: \r\n")
}

func TestBuildGmailRawFallbacks(t *testing.T) {
	raw := buildGmailRaw("me@example.com", "S", "<p>Only html</p>", "")
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	// the plain part is derived by stripping tags
	assert.Contains(t, string(decoded), "Only html")

	raw = buildGmailRaw("me@example.com", "S", "", "line one\nline two")
	decoded, err = base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "line one<br>line two")
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hello world", stripTags("<p>Hello <b>world</b></p>"))
	assert.Equal(t, "plain", stripTags("plain"))
}

func TestHTMLOrWrapped(t *testing.T) {
	assert.Equal(t, "<p>x</p>", htmlOrWrapped("<p>x</p>", "ignored"))
	wrapped := htmlOrWrapped("", "a\nb")
	assert.True(t, strings.HasPrefix(wrapped, "<html>"))
	assert.Contains(t, wrapped, "a<br>b")
}
