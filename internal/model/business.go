package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business 企业（租户客户）- 中央域
type Business struct {
	ID                 uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Name               string     `json:"name" gorm:"not null;size:255;comment:'企业名称'"`
	Email              string     `json:"email" gorm:"size:255;comment:'企业联系邮箱'"`
	Phone              string     `json:"phone" gorm:"size:50"`
	TenantID           *string    `json:"tenant_id" gorm:"uniqueIndex;size:64;comment:'租户分区标识，开通后写入且不可变更'"`
	SubscriptionStatus string     `json:"subscription_status" gorm:"size:20;default:'';comment:'当前订阅状态缓存'"`
	ResellerID         *uuid.UUID `json:"reseller_id" gorm:"type:uuid;index"`
	IndustryID         *uuid.UUID `json:"industry_id" gorm:"type:uuid;index"`
	Labels             JSONMap    `json:"labels" gorm:"type:jsonb;default:'{}'"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Business) TableName() string {
	return "businesses"
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsProvisioned 是否已分配租户分区
func (b *Business) IsProvisioned() bool {
	return b.TenantID != nil && *b.TenantID != ""
}

// BusinessUser 用户-企业成员关系（pivot）
type BusinessUser struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BusinessID      uuid.UUID `json:"business_id" gorm:"type:uuid;uniqueIndex:idx_business_users_pair;not null"`
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_business_users_pair;not null"`
	IsPrimary       bool      `json:"is_primary" gorm:"default:false;comment:'是否为用户的主企业'"`
	IsBusinessAdmin bool      `json:"is_business_admin" gorm:"default:false;comment:'是否为企业管理员'"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BusinessUser) TableName() string {
	return "business_users"
}

func (bu *BusinessUser) BeforeCreate(tx *gorm.DB) error {
	if bu.ID == uuid.Nil {
		bu.ID = uuid.New()
	}
	return nil
}
