package repository

import (
	"fmt"

	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
)

type BusinessRepository struct {
	db *gorm.DB
}

func NewBusinessRepository(db *gorm.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

func (r *BusinessRepository) Create(business *model.Business) error {
	return r.db.Create(business).Error
}

func (r *BusinessRepository) GetByID(id string) (*model.Business, error) {
	var business model.Business
	if err := r.db.Where("id = ?", id).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func (r *BusinessRepository) GetByName(name string) (*model.Business, error) {
	var business model.Business
	if err := r.db.Where("name = ?", name).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func (r *BusinessRepository) GetByTenantID(tenantID string) (*model.Business, error) {
	var business model.Business
	if err := r.db.Where("tenant_id = ?", tenantID).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// SetTenantID 写入租户分区标识，仅允许从空写入一次
func (r *BusinessRepository) SetTenantID(businessID, tenantID string) error {
	result := r.db.Model(&model.Business{}).
		Where("id = ? AND tenant_id IS NULL", businessID).
		Update("tenant_id", tenantID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("business %s already has a tenant partition", businessID)
	}
	return nil
}

func (r *BusinessRepository) Update(business *model.Business) error {
	return r.db.Save(business).Error
}

func (r *BusinessRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Business{}).Error
}

func (r *BusinessRepository) List(page, limit int) ([]*model.Business, int64, error) {
	var businesses []*model.Business
	var total int64

	offset := (page - 1) * limit

	if err := r.db.Model(&model.Business{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := r.db.Order("name").Offset(offset).Limit(limit).Find(&businesses).Error; err != nil {
		return nil, 0, err
	}

	return businesses, total, nil
}

// ListProvisioned 列出所有已分配租户分区的企业
func (r *BusinessRepository) ListProvisioned() ([]*model.Business, error) {
	var businesses []*model.Business
	err := r.db.Where("tenant_id IS NOT NULL").Find(&businesses).Error
	return businesses, err
}

func (r *BusinessRepository) GetDB() *gorm.DB {
	return r.db
}
