package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 中央用户（canonical identity）- 中央域
// GlobalID是跨域关联键：租户分区内的镜像记录通过它对应中央用户，
// 永远不使用中央主键做跨域关联。
type User struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	GlobalID     string         `json:"global_id" gorm:"uniqueIndex;size:36;not null;comment:'全局标识，生成后不变且不复用'"`
	Name         string         `json:"name" gorm:"size:255;not null"`
	Email        string         `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string         `json:"-" gorm:"not null"`
	Status       string         `json:"status" gorm:"size:20;default:'active';comment:'状态(active/suspended)'"`
	VerifiedAt   *time.Time     `json:"verified_at"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserStatus 用户状态常量
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// AuthResponse 认证响应
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest 用户资料更新请求
// 只允许更新会同步到租户镜像的受限属性子集
type UpdateProfileRequest struct {
	Name       string     `json:"name"`
	Email      string     `json:"email" binding:"omitempty,email"`
	Status     string     `json:"status" binding:"omitempty,oneof=active suspended"`
	VerifiedAt *time.Time `json:"verified_at"`
}

// ValidUserStatus 校验用户状态取值
func ValidUserStatus(status string) bool {
	switch status {
	case UserStatusActive, UserStatusSuspended:
		return true
	}
	return false
}
