package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantUser 租户分区内的用户镜像记录
// 与中央用户共享GlobalID；密码哈希直接复制，不重新推导。
// 每个(中央用户, 已开通企业)成员关系在该企业分区内恰好对应一条镜像。
type TenantUser struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	GlobalID     string    `json:"global_id" gorm:"uniqueIndex;size:36;not null"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Status       string    `json:"status" gorm:"size:20;default:'active'"`
	VerifiedAt   *time.Time `json:"verified_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (TenantUser) TableName() string {
	return "tenant_users"
}

func (tu *TenantUser) BeforeCreate(tx *gorm.DB) error {
	if tu.ID == uuid.Nil {
		tu.ID = uuid.New()
	}
	return nil
}
