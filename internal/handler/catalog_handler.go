package handler

import (
	"errors"
	"net/http"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogHandler 模块与套餐目录处理器
type CatalogHandler struct {
	moduleRepo  *repository.ModuleRepository
	packageRepo *repository.PackageRepository
}

func NewCatalogHandler(moduleRepo *repository.ModuleRepository, packageRepo *repository.PackageRepository) *CatalogHandler {
	return &CatalogHandler{
		moduleRepo:  moduleRepo,
		packageRepo: packageRepo,
	}
}

// ListModules 模块目录
func (h *CatalogHandler) ListModules(c *gin.Context) {
	modules, err := h.moduleRepo.List()
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取模块目录失败: %v", err)
		return
	}
	utils.Success(c, http.StatusOK, modules)
}

// GetModule 按代码获取模块
func (h *CatalogHandler) GetModule(c *gin.Context) {
	code := c.Param("code")
	module, err := h.moduleRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "模块不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取模块失败: %v", err)
		return
	}
	utils.Success(c, http.StatusOK, module)
}

// ListPackages 套餐目录
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	packages, err := h.packageRepo.List()
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取套餐目录失败: %v", err)
		return
	}
	utils.Success(c, http.StatusOK, packages)
}

// GetPackage 获取套餐详情
func (h *CatalogHandler) GetPackage(c *gin.Context) {
	id := c.Param("id")
	pkg, err := h.packageRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "套餐不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取套餐失败: %v", err)
		return
	}
	utils.Success(c, http.StatusOK, pkg)
}

// UpdatePackageModulesRequest 套餐模块集合更新请求
type UpdatePackageModulesRequest struct {
	ModuleIDs []uuid.UUID `json:"module_ids" binding:"required"`
}

// UpdatePackageModules 替换套餐的模块集合
// 只改目录，不触碰已订阅企业的启用集合；企业侧在下一次
// 套餐变更或pending激活时按新集合对账
func (h *CatalogHandler) UpdatePackageModules(c *gin.Context) {
	id := c.Param("id")
	pkg, err := h.packageRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "套餐不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取套餐失败: %v", err)
		return
	}

	var req UpdatePackageModulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	modules := make([]model.Module, 0, len(req.ModuleIDs))
	for _, moduleID := range req.ModuleIDs {
		module, err := h.moduleRepo.GetByID(moduleID.String())
		if err != nil {
			utils.Error(c, utils.ErrCodeNotFound, "模块 %s 不存在", moduleID)
			return
		}
		modules = append(modules, *module)
	}

	if err := h.packageRepo.ReplaceModules(pkg, modules); err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "更新套餐模块失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, pkg)
}
