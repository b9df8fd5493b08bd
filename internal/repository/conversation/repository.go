package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindByGuestNumber(ctx context.Context, hostID, guestNumber string) (*domain.Conversation, error)
	Upsert(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error)
	RecordInbound(ctx context.Context, conversationID, preview string, at time.Time) error
}

type repo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

// FindByGuestNumber returns the host's conversation with the guest
func (r *repo) FindByGuestNumber(ctx context.Context, hostID, guestNumber string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("host_id = ? AND guest_number = ?", hostID, guestNumber).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &conv, nil
}

// Upsert inserts the conversation unless one already exists for
// (host_id, guest_number) and returns the stored row. Concurrent callers for
// the same guest all get the same conversation.
func (r *repo) Upsert(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "host_id"}, {Name: "guest_number"}},
			DoNothing: true,
		}).
		Create(conv).Error
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return r.FindByGuestNumber(ctx, conv.HostID, conv.GuestNumber)
}

// RecordInbound bumps the unread counter and the last message preview in a
// single statement. The activity timestamps only move forward, so a late
// redelivery cannot shift the reply window.
func (r *repo) RecordInbound(ctx context.Context, conversationID, preview string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"unread_count":    gorm.Expr("unread_count + ?", 1),
			"last_message":    preview,
			"last_message_at": latest("last_message_at", at),
			"last_inbound_at": latest("last_inbound_at", at),
		})
	if res.Error != nil {
		return fmt.Errorf("update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func latest(column string, at time.Time) clause.Expr {
	return gorm.Expr("CASE WHEN "+column+" IS NULL OR "+column+" < ? THEN ? ELSE "+column+" END", at, at)
}
