package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nwittke/billfox/app/models"
)

func TestEmailProviderUpsertReplacesCredentials(t *testing.T) {
	repo := NewEmailProviderRepository(newTestDB(t))

	first := &models.EmailProvider{UserID: 1, ProviderName: "sendgrid", APIKey: "key-v1"}
	require.NoError(t, repo.Upsert(first))

	second := &models.EmailProvider{
		UserID:       1,
		ProviderName: "sendgrid",
		APIKey:       "key-v2",
		FromEmail:    "billing@acme.example",
		FromName:     "Acme",
	}
	require.NoError(t, repo.Upsert(second))
	assert.Equal(t, first.ID, second.ID)

	stored, err := repo.GetActive(1, "sendgrid")
	require.NoError(t, err)
	assert.Equal(t, "key-v2", stored.APIKey)
	assert.Equal(t, "billing@acme.example", stored.FromEmail)
}

// Saving again after a delete reactivates the stored row.
func TestEmailProviderUpsertReactivates(t *testing.T) {
	repo := NewEmailProviderRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 1, ProviderName: "postmark", APIKey: "k1"}))
	require.NoError(t, repo.Deactivate(1, "postmark"))

	_, err := repo.GetActive(1, "postmark")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 1, ProviderName: "postmark", APIKey: "k2"}))
	stored, err := repo.GetActive(1, "postmark")
	require.NoError(t, err)
	assert.Equal(t, "k2", stored.APIKey)
	assert.True(t, stored.IsActive)
}

func TestEmailProviderListActive(t *testing.T) {
	repo := NewEmailProviderRepository(newTestDB(t))

	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 1, ProviderName: "sendgrid", APIKey: "k"}))
	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 1, ProviderName: "postmark", APIKey: "k"}))
	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 2, ProviderName: "sendgrid", APIKey: "k"}))
	require.NoError(t, repo.Deactivate(1, "postmark"))

	configs, err := repo.ListActive(1)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "sendgrid", configs[0].ProviderName)
}

func TestEmailProviderUpdateSender(t *testing.T) {
	repo := NewEmailProviderRepository(newTestDB(t))
	require.NoError(t, repo.Upsert(&models.EmailProvider{UserID: 1, ProviderName: "sendgrid", APIKey: "k"}))

	require.NoError(t, repo.UpdateSender(1, "sendgrid", "new-sender@acme.example"))

	stored, err := repo.GetActive(1, "sendgrid")
	require.NoError(t, err)
	assert.Equal(t, "new-sender@acme.example", stored.FromEmail)
}
