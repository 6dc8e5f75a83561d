package repository

import (
	"errors"

	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
)

// TenantUserRepository 租户分区内镜像记录的Repository
// 分区句柄由每次调用传入：同一个Repository服务于所有分区。
type TenantUserRepository struct{}

func NewTenantUserRepository() *TenantUserRepository {
	return &TenantUserRepository{}
}

func (r *TenantUserRepository) Create(db *gorm.DB, user *model.TenantUser) error {
	return db.Create(user).Error
}

// FindByEmail 分区内按邮箱查找镜像，不存在时返回(nil, nil)
func (r *TenantUserRepository) FindByEmail(db *gorm.DB, email string) (*model.TenantUser, error) {
	var user model.TenantUser
	err := db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByGlobalID 分区内按全局标识查找镜像，不存在时返回(nil, nil)
func (r *TenantUserRepository) FindByGlobalID(db *gorm.DB, globalID string) (*model.TenantUser, error) {
	var user model.TenantUser
	err := db.Where("global_id = ?", globalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// UpdateAttrs 按全局标识更新受限属性子集
func (r *TenantUserRepository) UpdateAttrs(db *gorm.DB, globalID string, attrs map[string]interface{}) error {
	return db.Model(&model.TenantUser{}).Where("global_id = ?", globalID).Updates(attrs).Error
}

// DeleteByGlobalID 按全局标识删除镜像；记录不存在时为空操作
func (r *TenantUserRepository) DeleteByGlobalID(db *gorm.DB, globalID string) error {
	return db.Where("global_id = ?", globalID).Delete(&model.TenantUser{}).Error
}

// ListGlobalIDs 分区内全部镜像的全局标识，供对账扫描使用
func (r *TenantUserRepository) ListGlobalIDs(db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.Model(&model.TenantUser{}).Pluck("global_id", &ids).Error
	return ids, err
}

func (r *TenantUserRepository) Count(db *gorm.DB) (int64, error) {
	var total int64
	err := db.Model(&model.TenantUser{}).Count(&total).Error
	return total, err
}
