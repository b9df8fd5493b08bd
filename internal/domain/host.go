package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultAPIVersion = "v24.0"

// Host is a tenant. PhoneNumberID routes inbound webhooks to exactly one host.
// Active has no column default, so it must be set on create.
type Host struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email            string    `gorm:"type:varchar(255);not null" json:"email"`
	PropertyID       string    `gorm:"type:varchar(64)" json:"property_id"`
	PhoneNumberID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_hosts_phone_number_id" json:"phone_number_id"`
	AccessToken      string    `gorm:"type:text;not null" json:"-"`
	VerifyToken      string    `gorm:"type:varchar(255);not null;index:idx_hosts_verify_token" json:"-"`
	APIVersion       string    `gorm:"type:varchar(16);not null;default:'v24.0'" json:"api_version"`
	ExpiryTemplate   string    `gorm:"type:varchar(128)" json:"expiry_template,omitempty"`
	TemplateLanguage string    `gorm:"type:varchar(16)" json:"template_language,omitempty"`
	Active           bool      `gorm:"not null" json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (h *Host) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.APIVersion == "" {
		h.APIVersion = DefaultAPIVersion
	}
	return nil
}
