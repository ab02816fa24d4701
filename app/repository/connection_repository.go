package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nwittke/billfox/app/models"
)

// connectionRepository implements the ConnectionRepository interface
type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new OAuth connection repository instance
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

// Upsert creates or updates the connection keyed by (user_id, provider).
// An existing row keeps its created_at; all credential and metadata fields
// are replaced.
func (r *connectionRepository) Upsert(conn *models.OAuthConnection) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token_enc",
			"refresh_token_enc",
			"account_id",
			"account_email",
			"account_name",
			"datacenter",
			"is_connected",
			"updated_at",
		}),
	}).Create(conn).Error; err != nil {
		return err
	}

	return r.db.Where("user_id = ? AND provider = ?", conn.UserID, conn.Provider).
		First(conn).Error
}

func (r *connectionRepository) GetByUserAndProvider(userID uint, provider string) (*models.OAuthConnection, error) {
	var conn models.OAuthConnection
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) GetAnyConnectedByProvider(provider string) (*models.OAuthConnection, error) {
	var conn models.OAuthConnection
	err := r.db.Where("provider = ? AND is_connected = ?", provider, true).
		Limit(1).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// AdoptByProvider moves a connection to a new owner in one conditional
// update so concurrent syncs cannot both claim it.
func (r *connectionRepository) AdoptByProvider(id uint, userID uint) (int64, error) {
	res := r.db.Model(&models.OAuthConnection{}).
		Where("id = ? AND user_id <> ?", id, userID).
		Updates(map[string]any{"user_id": userID, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *connectionRepository) UpdateTokens(id uint, accessTokenEnc, refreshTokenEnc string) error {
	updates := map[string]any{
		"access_token_enc": accessTokenEnc,
		"updated_at":       time.Now(),
	}
	if refreshTokenEnc != "" {
		updates["refresh_token_enc"] = refreshTokenEnc
	}
	return r.db.Model(&models.OAuthConnection{}).Where("id = ?", id).Updates(updates).Error
}

func (r *connectionRepository) TouchLastSynced(id uint, at time.Time) error {
	return r.db.Model(&models.OAuthConnection{}).Where("id = ?", id).
		UpdateColumn("last_synced_at", at).Error
}

// Disconnect clears the stored tokens but keeps the row, marking the
// connection inactive (PayPal-style soft disconnect).
func (r *connectionRepository) Disconnect(userID uint, provider string) error {
	return r.db.Model(&models.OAuthConnection{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]any{
			"is_connected":      false,
			"access_token_enc":  "",
			"refresh_token_enc": "",
			"updated_at":        time.Now(),
		}).Error
}

// Delete removes the connection row entirely.
func (r *connectionRepository) Delete(userID uint, provider string) error {
	return r.db.Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.OAuthConnection{}).Error
}
