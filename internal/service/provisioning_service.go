package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bizhub-system/business-management/internal/constants"
	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProvisioningService 企业开通编排器
//
// 把开通流程拆成五个各自幂等的步骤：企业记录、租户分区、管理员账号、
// 身份镜像、初始订阅。每一步先检查自身前置条件，已满足则跳过，
// 因此开通中途失败后用同一请求重试即可收敛，不会产生重复数据。
type ProvisioningService struct {
	businessRepo       *repository.BusinessRepository
	partitionStore     *PartitionStore
	identityService    *IdentityService
	syncService        *IdentitySyncService
	entitlementService *EntitlementService
	auditService       *AuditService
	notifier           Notifier
	logger             *zap.Logger
}

func NewProvisioningService(
	businessRepo *repository.BusinessRepository,
	partitionStore *PartitionStore,
	identityService *IdentityService,
	syncService *IdentitySyncService,
	entitlementService *EntitlementService,
	auditService *AuditService,
	notifier Notifier,
	logger *zap.Logger,
) *ProvisioningService {
	return &ProvisioningService{
		businessRepo:       businessRepo,
		partitionStore:     partitionStore,
		identityService:    identityService,
		syncService:        syncService,
		entitlementService: entitlementService,
		auditService:       auditService,
		notifier:           notifier,
		logger:             logger,
	}
}

// Provision 执行完整开通流程
func (s *ProvisioningService) Provision(ctx context.Context, req *model.RegistrationRequest) (*model.Business, error) {
	business, err := s.ensureBusiness(req)
	if err != nil {
		return nil, err
	}

	if err := s.ensurePartition(business); err != nil {
		return nil, err
	}

	admin, err := s.ensureAdminUser(req)
	if err != nil {
		return nil, err
	}

	if err := s.syncService.SyncToBusiness(ctx, admin, business, true, true); err != nil {
		return nil, fmt.Errorf("failed to sync admin into business %s: %w", business.Name, err)
	}

	if err := s.ensureSubscription(business, req); err != nil {
		return nil, err
	}

	s.auditService.LogBusinessOperation(business.ID, "provision", admin.Email, nil, map[string]interface{}{
		"business_name": business.Name,
		"tenant_id":     business.TenantID,
	})
	s.notifier.Notify(constants.NotifyEventWelcome, business, map[string]interface{}{
		"admin_email": admin.Email,
	})
	s.notifier.Notify(constants.NotifyEventAdminNewBusiness, business, map[string]interface{}{
		"business_name": business.Name,
		"admin_email":   admin.Email,
	})

	s.logger.Info("企业开通完成",
		zap.String("business_id", business.ID.String()),
		zap.String("business_name", business.Name))

	return business, nil
}

// ensureBusiness 企业记录：同名同邮箱视为上次失败遗留，直接复用
func (s *ProvisioningService) ensureBusiness(req *model.RegistrationRequest) (*model.Business, error) {
	existing, err := s.businessRepo.GetByName(req.BusinessName)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Email != req.BusinessEmail {
			return nil, ErrBusinessAlreadyExists(req.BusinessName)
		}
		return existing, nil
	}

	business := &model.Business{
		Name:       req.BusinessName,
		Email:      req.BusinessEmail,
		Phone:      req.BusinessPhone,
		ResellerID: req.ResellerID,
		IndustryID: req.IndustryID,
	}
	if err := s.businessRepo.Create(business); err != nil {
		return nil, fmt.Errorf("failed to create business: %w", err)
	}
	return business, nil
}

// ensurePartition 租户分区：tenant_id已写入则跳过
func (s *ProvisioningService) ensurePartition(business *model.Business) error {
	if business.IsProvisioned() {
		return nil
	}

	partitionID, err := s.partitionStore.Provision(business.ID.String())
	if err != nil {
		return err
	}

	if err := s.businessRepo.SetTenantID(business.ID.String(), partitionID); err != nil {
		// 分区悬空可回收，企业记录不能带着错误指针
		s.logger.Error("分区标识写入失败，回收已创建的分区",
			zap.String("partition_id", partitionID), zap.Error(err))
		if destroyErr := s.partitionStore.Destroy(partitionID); destroyErr != nil {
			s.logger.Error("分区回收失败", zap.String("partition_id", partitionID), zap.Error(destroyErr))
		}
		return err
	}

	business.TenantID = &partitionID
	return nil
}

// ensureAdminUser 管理员账号：邮箱已注册则复用现有账号
func (s *ProvisioningService) ensureAdminUser(req *model.RegistrationRequest) (*model.User, error) {
	existing, err := s.identityService.FindByEmail(req.AdminEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.identityService.CreateUser(req.AdminName, req.AdminEmail, req.AdminPassword)
}

// ensureSubscription 初始订阅：已有当前订阅则跳过
func (s *ProvisioningService) ensureSubscription(business *model.Business, req *model.RegistrationRequest) error {
	if req.PackageID == nil && !req.StartTrial {
		return nil
	}

	current, err := s.entitlementService.GetCurrentSubscription(business)
	if err != nil {
		return err
	}
	if current != nil {
		return nil
	}

	billingCycle := req.BillingCycle
	if billingCycle == "" {
		billingCycle = model.BillingCycleMonthly
	}

	var packageID uuid.UUID
	if req.PackageID != nil {
		packageID = *req.PackageID
	}

	_, err = s.entitlementService.CreateSubscription(business, packageID, billingCycle, req.StartTrial, nil)
	return err
}
