package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentMethodRepository interface {
	Upsert(ctx context.Context, pm *model.PaymentMethod) error
	Get(ctx context.Context, paymentMethodID uint) (*model.PaymentMethod, error)
}

type paymentMethodRepoImpl struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepoImpl{
		db: db,
	}
}

func (r *paymentMethodRepoImpl) Upsert(ctx context.Context, pm *model.PaymentMethod) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":          pm.Name,
			"code":          pm.Code,
			"mode":          pm.Mode,
			"is_active":     pm.IsActive,
			"server_key":    pm.ServerKey,
			"client_key":    pm.ClientKey,
			"client_id":     pm.ClientID,
			"client_secret": pm.ClientSecret,
			"webhook_id":    pm.WebhookID,
			"merchant_id":   pm.MerchantID,
			"public_key":    pm.PublicKey,
			"private_key":   pm.PrivateKey,
			"return_url":    pm.ReturnURL,
			"cancel_url":    pm.CancelURL,
			"updated_at":    time.Now(),
		}),
	}).Create(pm).Error
}

func (r *paymentMethodRepoImpl) Get(ctx context.Context, paymentMethodID uint) (*model.PaymentMethod, error) {
	var pm model.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("id = ?", paymentMethodID).
		First(&pm).Error
	if err != nil {
		return nil, err
	}

	return &pm, nil
}
