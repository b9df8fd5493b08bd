package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeTemplate MessageType = "template"
)

type MessageStatus string

const (
	StatusReceived MessageStatus = "received"
	StatusSent     MessageStatus = "sent"
	StatusFailed   MessageStatus = "failed"
)

// Message is append-only. ProviderMessageID is the WhatsApp wamid and is
// unique when set, which makes inbound ingestion idempotent.
type Message struct {
	ID                string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID    string        `gorm:"type:varchar(36);not null;index:idx_messages_conversation" json:"conversation_id"`
	ProviderMessageID *string       `gorm:"type:varchar(128);uniqueIndex:idx_messages_provider_id" json:"provider_message_id,omitempty"`
	Content           string        `gorm:"type:text;not null;default:''" json:"content"`
	Direction         Direction     `gorm:"type:varchar(16);not null" json:"direction"`
	Type              MessageType   `gorm:"type:varchar(16);not null" json:"type"`
	Status            MessageStatus `gorm:"type:varchar(16);not null" json:"status"`
	SentAt            time.Time     `gorm:"index:idx_messages_sent_at" json:"sent_at"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Models lists everything AutoMigrate has to know about.
func Models() []any {
	return []any{&Host{}, &Conversation{}, &Message{}}
}
