package repository

import (
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BusinessModuleRepository struct {
	db *gorm.DB
}

func NewBusinessModuleRepository(db *gorm.DB) *BusinessModuleRepository {
	return &BusinessModuleRepository{db: db}
}

// Activate 启用模块（幂等upsert）
// 已有记录时只翻转is_active并刷新版本戳，保留Settings等租户侧数据。
func (r *BusinessModuleRepository) Activate(tx *gorm.DB, businessID, moduleID uuid.UUID, version string, trialOnly bool) error {
	activation := &model.BusinessModule{
		BusinessID: businessID,
		ModuleID:   moduleID,
		IsActive:   true,
		Version:    version,
		TrialOnly:  trialOnly,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "business_id"}, {Name: "module_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "version", "trial_only"}),
	}).Create(activation).Error
}

// Deactivate 停用单个模块，记录不存在时为空操作
func (r *BusinessModuleRepository) Deactivate(tx *gorm.DB, businessID, moduleID uuid.UUID) error {
	return tx.Model(&model.BusinessModule{}).
		Where("business_id = ? AND module_id = ?", businessID, moduleID).
		Updates(map[string]interface{}{"is_active": false, "trial_only": false}).Error
}

// DeactivateAll 停用企业的全部模块
func (r *BusinessModuleRepository) DeactivateAll(tx *gorm.DB, businessID uuid.UUID) error {
	return tx.Model(&model.BusinessModule{}).
		Where("business_id = ? AND is_active = ?", businessID, true).
		Updates(map[string]interface{}{"is_active": false, "trial_only": false}).Error
}

// ListActive 企业当前启用的模块记录
func (r *BusinessModuleRepository) ListActive(businessID string) ([]*model.BusinessModule, error) {
	var activations []*model.BusinessModule
	err := r.db.Where("business_id = ? AND is_active = ?", businessID, true).
		Find(&activations).Error
	return activations, err
}

// ActiveModuleIDs 企业当前启用的模块ID集合
func (r *BusinessModuleRepository) ActiveModuleIDs(tx *gorm.DB, businessID uuid.UUID) (map[uuid.UUID]bool, error) {
	var activations []*model.BusinessModule
	if err := tx.Where("business_id = ? AND is_active = ?", businessID, true).
		Find(&activations).Error; err != nil {
		return nil, err
	}

	ids := make(map[uuid.UUID]bool, len(activations))
	for _, activation := range activations {
		ids[activation.ModuleID] = true
	}
	return ids, nil
}

func (r *BusinessModuleRepository) DeleteByBusiness(tx *gorm.DB, businessID string) error {
	return tx.Where("business_id = ?", businessID).Delete(&model.BusinessModule{}).Error
}
