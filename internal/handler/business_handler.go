package handler

import (
	"errors"
	"net/http"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/bizhub-system/business-management/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BusinessHandler 企业处理器
type BusinessHandler struct {
	businessRepo        *repository.BusinessRepository
	provisioningService *service.ProvisioningService
	businessDeleter     *service.BusinessDeleter
}

func NewBusinessHandler(
	businessRepo *repository.BusinessRepository,
	provisioningService *service.ProvisioningService,
	businessDeleter *service.BusinessDeleter,
) *BusinessHandler {
	return &BusinessHandler{
		businessRepo:        businessRepo,
		provisioningService: provisioningService,
		businessDeleter:     businessDeleter,
	}
}

// Register 企业注册开通
// 失败后用同一请求重试是安全的，开通流程各步骤幂等
func (h *BusinessHandler) Register(c *gin.Context) {
	var req model.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	business, err := h.provisioningService.Provision(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "企业开通失败: %v", err)
		return
	}

	utils.Success(c, http.StatusCreated, business)
}

// GetBusiness 获取企业详情
func (h *BusinessHandler) GetBusiness(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		utils.Error(c, utils.ErrCodeValidationFailed, "企业ID不能为空")
		return
	}

	business, err := h.businessRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "企业不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取企业失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, business)
}

// ListBusinesses 获取企业列表
func (h *BusinessHandler) ListBusinesses(c *gin.Context) {
	page := utils.ParseInt(c.DefaultQuery("page", "1"), 1)
	pageSize := utils.ParseInt(c.DefaultQuery("page_size", "10"), 10)

	businesses, total, err := h.businessRepo.List(page, pageSize)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取企业列表失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"items":       businesses,
		"total":       total,
		"page":        int64(page),
		"page_size":   int64(pageSize),
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// PreCheckDeletion 删除前预检查
func (h *BusinessHandler) PreCheckDeletion(c *gin.Context) {
	id := c.Param("id")
	business, err := h.businessRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "企业不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取企业失败: %v", err)
		return
	}

	stats, err := h.businessDeleter.PreCheckDeletion(business)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "删除预检失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, stats)
}

// DeleteBusiness 删除企业（级联清退）
func (h *BusinessHandler) DeleteBusiness(c *gin.Context) {
	id := c.Param("id")
	business, err := h.businessRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "企业不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取企业失败: %v", err)
		return
	}

	if err := h.businessDeleter.DeleteBusiness(business); err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "删除企业失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"message": "删除成功",
	})
}
