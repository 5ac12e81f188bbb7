package repository

import (
	"context"

	"storefront/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Record(ctx context.Context, event *model.WebhookEvent) error
	CountByOrderRef(ctx context.Context, provider, orderRef string) (int64, error)
}

type webhookEventRepositoryIml struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepositoryIml{db: db}
}

func (r *webhookEventRepositoryIml) Record(ctx context.Context, event *model.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *webhookEventRepositoryIml) CountByOrderRef(ctx context.Context, provider, orderRef string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("provider = ? AND order_ref = ?", provider, orderRef).
		Count(&count).Error

	return count, err
}
