package repository

import (
	"errors"

	"github.com/bizhub-system/business-management/internal/model"
	"gorm.io/gorm"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) Create(pkg *model.Package) error {
	return r.db.Create(pkg).Error
}

// GetByID 带模块列表加载套餐
func (r *PackageRepository) GetByID(id string) (*model.Package, error) {
	var pkg model.Package
	if err := r.db.Preload("Modules").Where("id = ?", id).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) GetByName(name string) (*model.Package, error) {
	var pkg model.Package
	if err := r.db.Preload("Modules").Where("name = ?", name).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetTrialPackage 获取试用专用的全功能套餐
func (r *PackageRepository) GetTrialPackage() (*model.Package, error) {
	var pkg model.Package
	if err := r.db.Preload("Modules").Where("is_trial = ?", true).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) List() ([]*model.Package, error) {
	var packages []*model.Package
	err := r.db.Preload("Modules").Order("name").Find(&packages).Error
	return packages, err
}

func (r *PackageRepository) Update(pkg *model.Package) error {
	return r.db.Save(pkg).Error
}

// ReplaceModules 重设套餐的模块集合
func (r *PackageRepository) ReplaceModules(pkg *model.Package, modules []model.Module) error {
	return r.db.Model(pkg).Association("Modules").Replace(modules)
}

// EnsureDefaultCatalog 保证模块目录和试用套餐存在（启动时调用，幂等）
func (r *PackageRepository) EnsureDefaultCatalog() error {
	defaults := []model.Module{
		{Code: "core", Name: "平台核心", Version: "1.0.0", IsCore: true},
		{Code: "hr", Name: "人事管理", Version: "1.0.0"},
		{Code: "leave", Name: "休假管理", Version: "1.0.0"},
		{Code: "scheduling", Name: "排班管理", Version: "1.0.0"},
		{Code: "crm", Name: "客户管理", Version: "1.0.0"},
		{Code: "reports", Name: "报表中心", Version: "1.0.0"},
	}

	var modules []model.Module
	for _, def := range defaults {
		var module model.Module
		err := r.db.Where("code = ?", def.Code).First(&module).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			module = def
			if err := r.db.Create(&module).Error; err != nil {
				return err
			}
		}
		modules = append(modules, module)
	}

	var trial model.Package
	err := r.db.Where("is_trial = ?", true).First(&trial).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		trial = model.Package{
			Name:        "全功能试用",
			Description: "试用期内开放全部模块",
			BasePrice:   0,
			IsTrial:     true,
			Modules:     modules,
		}
		if err := r.db.Create(&trial).Error; err != nil {
			return err
		}
	}

	return nil
}

func (r *PackageRepository) GetDB() *gorm.DB {
	return r.db
}
