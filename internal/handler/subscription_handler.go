package handler

import (
	"errors"
	"net/http"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/bizhub-system/business-management/internal/service"
	"github.com/bizhub-system/business-management/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionHandler 订阅处理器
type SubscriptionHandler struct {
	businessRepo       *repository.BusinessRepository
	subscriptionRepo   *repository.SubscriptionRepository
	packageRepo        *repository.PackageRepository
	entitlementService *service.EntitlementService
}

func NewSubscriptionHandler(
	businessRepo *repository.BusinessRepository,
	subscriptionRepo *repository.SubscriptionRepository,
	packageRepo *repository.PackageRepository,
	entitlementService *service.EntitlementService,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		businessRepo:       businessRepo,
		subscriptionRepo:   subscriptionRepo,
		packageRepo:        packageRepo,
		entitlementService: entitlementService,
	}
}

// CreateSubscriptionRequest 创建订阅请求
type CreateSubscriptionRequest struct {
	PackageID    uuid.UUID `json:"package_id"`
	BillingCycle string    `json:"billing_cycle" binding:"required"`
	StartTrial   bool      `json:"start_trial"`
	Price        *float64  `json:"price_override"`
	UserLimit    *int      `json:"user_limit_override"`
}

// ChangePackageRequest 套餐变更请求
type ChangePackageRequest struct {
	PackageID        uuid.UUID `json:"package_id" binding:"required"`
	BillingCycle     string    `json:"billing_cycle" binding:"required"`
	ApplyImmediately bool      `json:"apply_immediately"`
	Price            *float64  `json:"price_override"`
	UserLimit        *int      `json:"user_limit_override"`
}

// CreateSubscription 创建订阅
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	overrides := &service.SubscriptionOverrides{Price: req.Price, UserLimit: req.UserLimit}
	subscription, err := h.entitlementService.CreateSubscription(business, req.PackageID, req.BillingCycle, req.StartTrial, overrides)
	if err != nil {
		h.subscriptionError(c, err, "创建订阅失败")
		return
	}

	utils.Success(c, http.StatusCreated, subscription)
}

// GetCurrentSubscription 获取当前订阅
func (h *SubscriptionHandler) GetCurrentSubscription(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	subscription, err := h.entitlementService.GetCurrentSubscription(business)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取当前订阅失败: %v", err)
		return
	}
	if subscription == nil {
		utils.Error(c, utils.ErrCodeNotFound, "企业没有当前订阅")
		return
	}

	utils.Success(c, http.StatusOK, subscription)
}

// ListSubscriptions 获取企业订阅历史
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	subscriptions, err := h.subscriptionRepo.ListByBusiness(business.ID.String())
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取订阅历史失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, subscriptions)
}

// ChangePackage 变更套餐
func (h *SubscriptionHandler) ChangePackage(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	var req ChangePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.ErrCodeValidationFailed, "请求参数错误: %v", err)
		return
	}

	overrides := &service.SubscriptionOverrides{Price: req.Price, UserLimit: req.UserLimit}
	subscription, err := h.entitlementService.ChangePackage(business, req.PackageID, req.BillingCycle, req.ApplyImmediately, overrides)
	if err != nil {
		h.subscriptionError(c, err, "变更套餐失败")
		return
	}

	utils.Success(c, http.StatusOK, subscription)
}

// CancelSubscription 取消订阅
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	immediately := c.DefaultQuery("immediately", "false") == "true"

	if err := h.entitlementService.Cancel(business, immediately); err != nil {
		h.subscriptionError(c, err, "取消订阅失败")
		return
	}

	utils.Success(c, http.StatusOK, gin.H{
		"message": "取消成功",
	})
}

// GetPriceQuote 套餐价格试算
func (h *SubscriptionHandler) GetPriceQuote(c *gin.Context) {
	packageID := c.Query("package_id")
	billingCycle := c.DefaultQuery("billing_cycle", "monthly")

	pkg, err := h.packageRepo.GetByID(packageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, utils.ErrCodeNotFound, "套餐不存在")
			return
		}
		utils.Error(c, utils.ErrCodeInternalError, "获取套餐失败: %v", err)
		return
	}

	price := h.entitlementService.CalculatePrice(pkg, billingCycle)

	utils.Success(c, http.StatusOK, gin.H{
		"package_id":    pkg.ID.String(),
		"package_name":  pkg.Name,
		"billing_cycle": billingCycle,
		"base_price":    pkg.BasePrice,
		"price":         price,
	})
}

// GetActiveModules 获取企业当前启用的模块集合
func (h *SubscriptionHandler) GetActiveModules(c *gin.Context) {
	business, ok := h.loadBusiness(c)
	if !ok {
		return
	}

	modules, err := h.entitlementService.ActiveModules(business)
	if err != nil {
		utils.Error(c, utils.ErrCodeInternalError, "获取模块集合失败: %v", err)
		return
	}

	utils.Success(c, http.StatusOK, modules)
}

func (h *SubscriptionHandler) loadBusiness(c *gin.Context) (*model.Business, bool) {
	id := c.Param("id")
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

func (h *SubscriptionHandler) subscriptionError(c *gin.Context, err error, format string) {
	switch {
	case errors.Is(err, service.ErrPackageNotFound), errors.Is(err, service.ErrNoCurrentSubscription):
		utils.Error(c, utils.ErrCodeNotFound, "%s: %v", format, err)
	case errors.Is(err, service.ErrInvalidBillingCycle):
		utils.Error(c, utils.ErrCodeValidationFailed, "%s: %v", format, err)
	case errors.Is(err, service.ErrSubscriptionNotPending), errors.Is(err, service.ErrSubscriptionNotTrial):
		utils.Error(c, utils.ErrCodePreconditionFailed, "%s: %v", format, err)
	default:
		utils.Error(c, utils.ErrCodeInternalError, "%s: %v", format, err)
	}
}
