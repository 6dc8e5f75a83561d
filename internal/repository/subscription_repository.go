package repository

import (
	"errors"
	"time"

	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(subscription *model.Subscription) error {
	return r.db.Create(subscription).Error
}

func (r *SubscriptionRepository) GetByID(id string) (*model.Subscription, error) {
	var subscription model.Subscription
	if err := r.db.Preload("Package").Where("id = ?", id).First(&subscription).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

// GetCurrent 企业的当前订阅（trial或active），不存在时返回(nil, nil)
func (r *SubscriptionRepository) GetCurrent(businessID string) (*model.Subscription, error) {
	return currentSubscription(r.db, businessID)
}

// GetCurrentTx 事务内读取当前订阅
func (r *SubscriptionRepository) GetCurrentTx(tx *gorm.DB, businessID string) (*model.Subscription, error) {
	return currentSubscription(tx, businessID)
}

func currentSubscription(db *gorm.DB, businessID string) (*model.Subscription, error) {
	var subscription model.Subscription
	err := db.Preload("Package").Preload("Package.Modules").
		Where("business_id = ? AND status IN ?", businessID,
			[]string{model.SubscriptionStatusTrial, model.SubscriptionStatusActive}).
		Order("created_at DESC").
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

// GetPending 企业已排队的pending订阅，不存在时返回(nil, nil)
func (r *SubscriptionRepository) GetPending(businessID string) (*model.Subscription, error) {
	var subscription model.Subscription
	err := r.db.Preload("Package").Preload("Package.Modules").
		Where("business_id = ? AND status = ?", businessID, model.SubscriptionStatusPending).
		Order("start_date").
		First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *SubscriptionRepository) Update(subscription *model.Subscription) error {
	return r.db.Save(subscription).Error
}

func (r *SubscriptionRepository) ListByBusiness(businessID string) ([]*model.Subscription, error) {
	var subscriptions []*model.Subscription
	err := r.db.Preload("Package").
		Where("business_id = ?", businessID).
		Order("created_at DESC").
		Find(&subscriptions).Error
	return subscriptions, err
}

// ListExpiredTrials 试用期已过的trial订阅，供定时任务转正
func (r *SubscriptionRepository) ListExpiredTrials(now time.Time) ([]*model.Subscription, error) {
	var subscriptions []*model.Subscription
	err := r.db.Preload("Package").Preload("Package.Modules").
		Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?",
			model.SubscriptionStatusTrial, now).
		Find(&subscriptions).Error
	return subscriptions, err
}

// ListDuePending 到达start_date的pending订阅，供定时任务激活
func (r *SubscriptionRepository) ListDuePending(now time.Time) ([]*model.Subscription, error) {
	var subscriptions []*model.Subscription
	err := r.db.Preload("Package").Preload("Package.Modules").
		Where("status = ? AND start_date <= ?", model.SubscriptionStatusPending, now).
		Find(&subscriptions).Error
	return subscriptions, err
}

func (r *SubscriptionRepository) DeleteByBusiness(tx *gorm.DB, businessID string) error {
	return tx.Where("business_id = ?", businessID).Delete(&model.Subscription{}).Error
}

func (r *SubscriptionRepository) GetDB() *gorm.DB {
	return r.db
}
