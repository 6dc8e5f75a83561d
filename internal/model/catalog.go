package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Module 功能模块目录项 - 全局，不分租户
type Module struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Code        string    `json:"code" gorm:"uniqueIndex;size:100;not null;comment:'模块代码'"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Version     string    `json:"version" gorm:"size:50;default:'1.0.0'"`
	IsCore      bool      `json:"is_core" gorm:"default:false;comment:'核心模块随所有套餐启用'"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Module) TableName() string {
	return "modules"
}

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Package 套餐（模块集合）- 全局目录项
// IsTrial=true的套餐为试用专用的全功能套餐，每次开通试用订阅时替换所选套餐。
type Package struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name         string    `json:"name" gorm:"uniqueIndex;size:255;not null"`
	Description  string    `json:"description" gorm:"type:text"`
	BasePrice    float64   `json:"base_price" gorm:"not null;default:0;comment:'月度基准价'"`
	MaxUsers     *int      `json:"max_users" gorm:"comment:'用户数上限，空为不限'"`
	MaxStorageGB *int      `json:"max_storage_gb"`
	IsTrial      bool      `json:"is_trial" gorm:"default:false;comment:'是否为试用全功能套餐'"`
	Modules      []Module  `json:"modules" gorm:"many2many:package_modules"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Package) TableName() string {
	return "packages"
}

func (p *Package) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
