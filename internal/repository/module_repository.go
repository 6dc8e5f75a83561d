package repository

import (
	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
)

type ModuleRepository struct {
	db *gorm.DB
}

func NewModuleRepository(db *gorm.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

func (r *ModuleRepository) Create(module *model.Module) error {
	return r.db.Create(module).Error
}

func (r *ModuleRepository) GetByID(id string) (*model.Module, error) {
	var module model.Module
	if err := r.db.Where("id = ?", id).First(&module).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *ModuleRepository) GetByCode(code string) (*model.Module, error) {
	var module model.Module
	if err := r.db.Where("code = ?", code).First(&module).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *ModuleRepository) List() ([]*model.Module, error) {
	var modules []*model.Module
	err := r.db.Order("code").Find(&modules).Error
	return modules, err
}

func (r *ModuleRepository) ListCore() ([]*model.Module, error) {
	var modules []*model.Module
	err := r.db.Where("is_core = ?", true).Find(&modules).Error
	return modules, err
}

func (r *ModuleRepository) Update(module *model.Module) error {
	return r.db.Save(module).Error
}
