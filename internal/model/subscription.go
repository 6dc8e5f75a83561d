package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription 企业订阅 - 中央域
// 不变式：同一企业同一时刻最多只有一条状态为trial或active的订阅（当前订阅）。
type Subscription struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	BusinessID        uuid.UUID  `json:"business_id" gorm:"type:uuid;index;not null;uniqueIndex:idx_subscriptions_one_current,where:status = 'trial' OR status = 'active'"`
	PackageID         uuid.UUID  `json:"package_id" gorm:"type:uuid;not null"`
	Package           *Package   `json:"package,omitempty" gorm:"foreignKey:PackageID"`
	Status            string     `json:"status" gorm:"size:20;not null;index;comment:'状态(trial/active/pending/cancelled/expired)'"`
	StartDate         time.Time  `json:"start_date" gorm:"not null"`
	EndDate           time.Time  `json:"end_date" gorm:"not null"`
	TrialEndsAt       *time.Time `json:"trial_ends_at"`
	BillingCycle      string     `json:"billing_cycle" gorm:"size:20;not null;comment:'计费周期(monthly/quarterly/annual)'"`
	Price             float64    `json:"price" gorm:"not null;default:0;comment:'按周期结算价'"`
	PriceOverride     *float64   `json:"price_override"`
	UserLimitOverride *int       `json:"user_limit_override"`
	IsAutoRenew       bool       `json:"is_auto_renew" gorm:"default:true"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SubscriptionStatus 订阅状态常量
const (
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// BillingCycle 计费周期常量
const (
	BillingCycleMonthly   = "monthly"
	BillingCycleQuarterly = "quarterly"
	BillingCycleAnnual    = "annual"
)

// IsCurrent 是否为企业的当前订阅（占用唯一的trial/active名额）
func (s *Subscription) IsCurrent() bool {
	return s.Status == SubscriptionStatusTrial || s.Status == SubscriptionStatusActive
}

// ValidBillingCycle 校验计费周期取值
func ValidBillingCycle(cycle string) bool {
	switch cycle {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleAnnual:
		return true
	}
	return false
}
