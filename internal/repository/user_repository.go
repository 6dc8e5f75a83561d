package repository

import (
	"errors"

	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 按邮箱查找，不存在时返回(nil, nil)
func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByGlobalID 按全局标识查找，不存在时返回(nil, nil)
func (r *UserRepository) FindByGlobalID(globalID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("global_id = ?", globalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.User{}).Error
}

// HardDelete 物理删除，仅供完整清退流程调用
func (r *UserRepository) HardDelete(id string) error {
	return r.db.Unscoped().Where("id = ?", id).Delete(&model.User{}).Error
}

// ===== 企业成员关系 =====

// AttachBusiness 建立成员关系，已存在时更新pivot标志（幂等）
func (r *UserRepository) AttachBusiness(membership *model.BusinessUser) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_primary", "is_business_admin"}),
	}).Create(membership).Error
}

// DetachBusiness 解除成员关系，关系不存在时为空操作
func (r *UserRepository) DetachBusiness(userID, businessID string) error {
	return r.db.Where("user_id = ? AND business_id = ?", userID, businessID).
		Delete(&model.BusinessUser{}).Error
}

func (r *UserRepository) GetMembership(userID, businessID string) (*model.BusinessUser, error) {
	var membership model.BusinessUser
	err := r.db.Where("user_id = ? AND business_id = ?", userID, businessID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

// ListMemberships 用户参与的全部企业成员关系
func (r *UserRepository) ListMemberships(userID string) ([]*model.BusinessUser, error) {
	var memberships []*model.BusinessUser
	err := r.db.Where("user_id = ?", userID).Find(&memberships).Error
	return memberships, err
}

// ListBusinessMembers 企业的全部成员关系
func (r *UserRepository) ListBusinessMembers(businessID string) ([]*model.BusinessUser, error) {
	var memberships []*model.BusinessUser
	err := r.db.Where("business_id = ?", businessID).Find(&memberships).Error
	return memberships, err
}

func (r *UserRepository) List(page, limit int) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	offset := (page - 1) * limit

	if err := r.db.Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := r.db.Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}
