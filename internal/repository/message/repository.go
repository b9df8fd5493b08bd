package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	conversationRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/conversation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Insert(ctx context.Context, msg *domain.Message) (inserted bool, err error)
	InsertInbound(ctx context.Context, msg *domain.Message, preview string, at time.Time) (inserted bool, err error)
}

type repo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

// Insert appends the message. A message whose provider id is already stored
// is skipped and inserted is false.
func (r *repo) Insert(ctx context.Context, msg *domain.Message) (bool, error) {
	return insert(r.db.WithContext(ctx), msg)
}

// InsertInbound appends an inbound message and records it on its
// conversation in one transaction. Either both writes land or neither does,
// so a failed attempt leaves nothing for the redelivery to collide with.
func (r *repo) InsertInbound(ctx context.Context, msg *domain.Message, preview string, at time.Time) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if inserted, err = insert(tx, msg); err != nil || !inserted {
			return err
		}

		return conversationRepo.NewConversationRepository(tx).RecordInbound(ctx, msg.ConversationID, preview, at)
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

func insert(db *gorm.DB, msg *domain.Message) (bool, error) {
	res := db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_message_id"}},
			DoNothing: true,
		}).
		Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("insert message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
