package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation is the thread between one host and one guest number.
// (HostID, GuestNumber) is unique.
type Conversation struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	HostID        string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversations_host_guest" json:"host_id"`
	PropertyID    string     `gorm:"type:varchar(64)" json:"property_id"`
	GuestNumber   string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_conversations_host_guest" json:"guest_number"`
	GuestName     string     `gorm:"type:varchar(255)" json:"guest_name,omitempty"`
	UnreadCount   int        `gorm:"not null;default:0" json:"unread_count"`
	LastMessage   string     `gorm:"type:varchar(160)" json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	LastInboundAt *time.Time `json:"last_inbound_at"`
	Archived      bool       `gorm:"not null;default:false" json:"archived"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
