package service

import (
	"errors"
	"fmt"

	"github.com/bizhub-system/business-management/internal/model"
	"github.com/bizhub-system/business-management/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BusinessDeleter 企业级联删除器
//
// 删除顺序：取消订阅并停用模块 → 解除成员关系 → 销毁租户分区
// （级联清掉全部镜像）→ 删除中心库记录。分区销毁放在中心记录删除
// 之前，任何一步崩溃后重新调用DeleteBusiness都能从断点继续。
type BusinessDeleter struct {
	db                 *gorm.DB
	businessRepo       *repository.BusinessRepository
	userRepo           *repository.UserRepository
	subscriptionRepo   *repository.SubscriptionRepository
	businessModuleRepo *repository.BusinessModuleRepository
	auditRepo          *repository.AuditRepository
	partitionStore     *PartitionStore
	logger             *zap.Logger
}

func NewBusinessDeleter(
	db *gorm.DB,
	businessRepo *repository.BusinessRepository,
	userRepo *repository.UserRepository,
	subscriptionRepo *repository.SubscriptionRepository,
	businessModuleRepo *repository.BusinessModuleRepository,
	auditRepo *repository.AuditRepository,
	partitionStore *PartitionStore,
	logger *zap.Logger,
) *BusinessDeleter {
	return &BusinessDeleter{
		db:                 db,
		businessRepo:       businessRepo,
		userRepo:           userRepo,
		subscriptionRepo:   subscriptionRepo,
		businessModuleRepo: businessModuleRepo,
		auditRepo:          auditRepo,
		partitionStore:     partitionStore,
		logger:             logger,
	}
}

// DeleteBusiness 删除企业及其所有依赖
func (d *BusinessDeleter) DeleteBusiness(business *model.Business) error {
	businessID := business.ID.String()

	// 1. 关闭订阅并停用全部模块
	if err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Subscription{}).
			Where("business_id = ? AND status IN ?", business.ID,
				[]string{model.SubscriptionStatusTrial, model.SubscriptionStatusActive, model.SubscriptionStatusPending}).
			Updates(map[string]interface{}{
				"status":        model.SubscriptionStatusCancelled,
				"is_auto_renew": false,
			}).Error; err != nil {
			return fmt.Errorf("取消订阅失败: %w", err)
		}
		if err := d.businessModuleRepo.DeactivateAll(tx, business.ID); err != nil {
			return fmt.Errorf("停用模块失败: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	// 2. 解除全部成员关系
	members, err := d.userRepo.ListBusinessMembers(businessID)
	if err != nil {
		return fmt.Errorf("获取企业成员失败: %w", err)
	}
	for _, member := range members {
		if err := d.userRepo.DetachBusiness(member.UserID.String(), businessID); err != nil {
			return fmt.Errorf("解除成员 %s 失败: %w", member.UserID, err)
		}
	}

	// 3. 销毁租户分区，镜像随分区一起清除
	if business.IsProvisioned() {
		if err := d.partitionStore.Destroy(*business.TenantID); err != nil && !errors.Is(err, ErrPartitionNotFound) {
			return fmt.Errorf("销毁租户分区失败: %w", err)
		}
	}

	// 4. 删除中心库记录
	if err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := d.subscriptionRepo.DeleteByBusiness(tx, businessID); err != nil {
			return fmt.Errorf("删除订阅记录失败: %w", err)
		}
		if err := d.businessModuleRepo.DeleteByBusiness(tx, businessID); err != nil {
			return fmt.Errorf("删除模块启用记录失败: %w", err)
		}
		if err := tx.Where("business_id = ?", business.ID).Delete(&model.AuditEvent{}).Error; err != nil {
			return fmt.Errorf("删除审计记录失败: %w", err)
		}
		if err := tx.Where("id = ?", business.ID).Delete(&model.Business{}).Error; err != nil {
			return fmt.Errorf("删除企业记录失败: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	d.logger.Info("企业删除完成",
		zap.String("business_id", businessID),
		zap.String("business_name", business.Name),
		zap.Int("detached_members", len(members)))

	return nil
}

// PreCheckDeletion 删除前预检查
func (d *BusinessDeleter) PreCheckDeletion(business *model.Business) (*DeletionStatistics, error) {
	members, err := d.userRepo.ListBusinessMembers(business.ID.String())
	if err != nil {
		return nil, fmt.Errorf("获取企业成员失败: %w", err)
	}

	activations, err := d.businessModuleRepo.ListActive(business.ID.String())
	if err != nil {
		return nil, fmt.Errorf("获取模块启用记录失败: %w", err)
	}

	subscriptions, err := d.subscriptionRepo.ListByBusiness(business.ID.String())
	if err != nil {
		return nil, fmt.Errorf("获取订阅记录失败: %w", err)
	}

	stats := &DeletionStatistics{
		BusinessID:        business.ID.String(),
		MemberCount:       len(members),
		ActiveModuleCount: len(activations),
		SubscriptionCount: len(subscriptions),
		HasPartition:      business.IsProvisioned(),
	}
	return stats, nil
}

// DeletionStatistics 删除预检统计
type DeletionStatistics struct {
	BusinessID        string `json:"business_id"`
	MemberCount       int    `json:"member_count"`
	ActiveModuleCount int    `json:"active_module_count"`
	SubscriptionCount int    `json:"subscription_count"`
	HasPartition      bool   `json:"has_partition"`
}
