package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"gorm.io/gorm"
)

type Repository interface {
	FindByVerifyToken(ctx context.Context, token string) (*domain.Host, error)
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Host, error)
}

type repo struct {
	db *gorm.DB
}

func NewHostRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

// FindByVerifyToken returns the active host whose webhook verify token matches
func (r *repo) FindByVerifyToken(ctx context.Context, token string) (*domain.Host, error) {
	return r.findOne(ctx, "verify_token = ?", token)
}

// FindByPhoneNumberID returns the active host that owns the WhatsApp phone number id
func (r *repo) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Host, error) {
	return r.findOne(ctx, "phone_number_id = ?", phoneNumberID)
}

func (r *repo) findOne(ctx context.Context, query string, arg string) (*domain.Host, error) {
	if arg == "" {
		return nil, domain.ErrHostNotFound
	}

	var host domain.Host
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Where("active = ?", true).
		First(&host).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrHostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query host: %w", err)
	}
	return &host, nil
}
