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

// UserHandler 用户与成员关系处理器
type UserHandler struct {
	businessRepo    *repository.BusinessRepository
	identityService *service.IdentityService
	syncService     *service.IdentitySyncService
}

func NewUserHandler(
	businessRepo *repository.BusinessRepository,
	identityService *service.IdentityService,
	syncService *service.IdentitySyncService,
) *UserHandler {
	return &UserHandler{
		businessRepo:    businessRepo,
		identityService: identityService,
		syncService:     syncService,
	}
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// AttachRequest 加入企业请求
type AttachRequest struct {
	IsPrimary       bool `json:"is_primary"`
	IsBusinessAdmin bool `json:"is_business_admin"`
}

// CreateUser 创建中央用户
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	user, err := h.identityService.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		utils.Error(c, utils.ErrCodeAlreadyExists, "创建用户失败: %v", err)
		return
	}

	utils.Success(c, http.StatusCreated, user)
}

// GetUser 按全局标识获取用户
func (h *UserHandler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	utils.Success(c, http.StatusOK, user)
}

// UpdateProfile 更新用户资料并扇出到全部租户镜像
// 单个分区失败不影响其他分区，结果里逐分区列出成功与失败
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	result, err := h.syncService.PropagateUpdate(c.Request.Context(), user, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidUserStatus) {
			utils.Error(c, utils.ErrCodeValidationFailed, "无效的用户状态: %s", req.Status)
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "更新用户资料失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"user":        user,
		"propagation": result,
	})
}

// ListMemberships 用户的企业成员关系列表
func (h *UserHandler) ListMemberships(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	memberships, err := h.identityService.ListMemberships(user)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取成员关系失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, memberships)
}

// AttachToBusiness 用户加入企业并同步镜像
func (h *UserHandler) AttachToBusiness(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	if err := h.syncService.SyncToBusiness(c.Request.Context(), user, business, req.IsPrimary, req.IsBusinessAdmin); err != nil {
		if errors.Is(err, service.ErrBusinessNotProvisioned) {
			utils.Error(c, utils.ErrCodePreconditionFailed, "企业尚未开通租户分区")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "加入企业失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"message": "加入成功",
	})
}

// DetachFromBusiness 用户退出企业并移除镜像
func (h *UserHandler) DetachFromBusiness(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	if err := h.syncService.RemoveFromBusiness(c.Request.Context(), user, business); err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "退出企业失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"message": "退出成功",
	})
}

// PurgeUser 彻底清退用户：移除全部企业的镜像与成员关系后物理删除
func (h *UserHandler) PurgeUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	if err := h.syncService.PurgeUser(c.Request.Context(), user); err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "清退用户失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"message": "用户已清退",
	})
}

// ResolveInTenant 解析用户在指定企业分区内的本地身份
// 供授权协作方做角色/权限评估
func (h *UserHandler) ResolveInTenant(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	tenantUser, err := h.syncService.ResolveInTenant(c.Request.Context(), user, business)
	if err != nil {
		if errors.Is(err, service.ErrBusinessNotProvisioned) {
			utils.Error(c, utils.ErrCodePreconditionFailed, "企业尚未开通租户分区")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "解析租户身份失败: %v", err)
		return
	}
	if tenantUser == nil {
		utils.Error(c, utils.ErrCodeNotFound, "用户在该企业分区内没有镜像")
		return
	}

	utils.Success(c, http.StatusOK, tenantUser)
}

func (h *UserHandler) loadUser(c *gin.Context) (*model.User, bool) {
	globalID := c.Param("global_id")
	if globalID == "" {
		utils.Error(c, utils.ErrCodeValidationFailed, "用户全局标识不能为空")
		return nil, false
	}

	user, err := h.identityService.FindByGlobalID(globalID)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取用户失败: %v", err)
		return nil, false
	}
	if user == nil {
		utils.Error(c, utils.ErrCodeNotFound, "用户不存在")
		return nil, false
	}
	return user, true
}

func (h *UserHandler) loadBusiness(c *gin.Context) (*model.Business, bool) {
	id := c.Param("business_id")
	if id == "" {
		utils.Error(c, utils.ErrCodeValidationFailed, "企业ID不能为空")
		return nil, false
	}

	business, err := h.businessRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "企业不存在")
			return nil, false
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取企业失败: %v", err)
		return nil, false
	}
	return business, true
}
