package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BusinessModule 企业-模块启用记录（pivot）- 中央域
// 不变式：is_active=true的模块集合必须等于企业当前订阅套餐的模块集合，
// 仅在套餐变更事务窗口内允许短暂不一致。
type BusinessModule struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BusinessID uuid.UUID `json:"business_id" gorm:"type:uuid;uniqueIndex:idx_business_modules_pair;not null"`
	ModuleID   uuid.UUID `json:"module_id" gorm:"type:uuid;uniqueIndex:idx_business_modules_pair;not null"`
	IsActive   bool      `json:"is_active" gorm:"default:true;index"`
	Version    string    `json:"version" gorm:"size:50;comment:'启用时从模块目录打上的版本戳'"`
	TrialOnly  bool      `json:"trial_only" gorm:"default:false"`
	Settings   JSONMap   `json:"settings" gorm:"type:jsonb;default:'{}';comment:'租户侧模块设置，套餐变更不得清除'"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BusinessModule) TableName() string {
	return "business_modules"
}

func (bm *BusinessModule) BeforeCreate(tx *gorm.DB) error {
	if bm.ID == uuid.Nil {
		bm.ID = uuid.New()
	}
	return nil
}
